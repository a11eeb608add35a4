package rules

// #region time-words

var timeWords = []string{
	"每小时", "每天", "每周", "每月", "每年",
	"早上", "晚上", "中午", "下午", "上午", "白天", "夜间", "夜里", "午间", "清晨", "傍晚",
	"昨天", "今天", "明天", "后天", "前天",
	"今年", "去年", "明年", "周末",
	"当时", "那时", "此时", "现在", "刚才",
}

var timeWordsEN = []string{
	"every day", "every morning", "every evening", "every week", "daily",
	"yesterday", "today", "tomorrow", "tonight", "last year", "next year",
	"in the morning", "in the evening",
}

// #endregion

// #region location-words

// locationPrepositions open a location phrase.
var locationPrepositions = []string{"在", "从", "到"}

// locationSuffixes close a location phrase.
var locationSuffixes = []rune{
	'里', '上', '下', '中', '内', '外', '旁', '边', '前', '后',
	'园', '场', '馆', '店', '室', '校', '家', '院', '站', '市', '区', '村', '厅', '楼',
	'街', '路', '山', '海', '河', '湖', '房', '所', '堂', '城', '国', '省', '岛', '厂',
}

// maxLocationRunes bounds the span scanned for a location suffix.
const maxLocationRunes = 8

// #endregion

// #region manner-words

var mannerWords = []string{
	"快速", "缓慢", "仔细", "小心", "谨慎", "认真", "轻轻", "慢慢", "悄悄", "急忙",
	"高兴", "努力", "大声", "安静",
}

// mannerMarker ends an adverbial manner phrase, e.g. 认真地.
const mannerMarker = "地"

// #endregion

// #region verbs

// verbs is matched longest-first at the start of the predicate span.
var verbs = []string{
	"跑步", "游泳", "散步", "学习", "工作", "唱歌", "跳舞", "睡觉", "起床", "上班", "下班",
	"发现", "发布", "宣布", "研究", "参加", "完成", "举行", "开发", "建设", "讨论", "决定",
	"喜欢", "看到", "听到", "认为", "提出", "获得", "需要", "希望", "介绍", "访问",
	"看", "读", "吃", "喝", "写", "买", "卖", "去", "来", "打", "玩", "唱", "做", "听",
	"说", "给", "送", "踢", "画", "开", "修", "种", "养", "是", "有", "骑", "坐", "住",
}

// aspectMarkers are dropped between a verb and its object.
var aspectMarkers = []string{"了", "着", "过"}

// quantifiers signal a counted object that must be kept whole.
var quantifiers = []rune{'个', '只', '本', '辆', '位', '条', '张', '件', '杯', '碗', '篇', '首'}

// #endregion
