package datasource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// File reads sentences from disk on every fetch. Supported layouts:
//
//	*.jsonl, *.jsonl.zst   one JSON sentence object (or bare string) per line
//	*.yaml, *.yml          a list of sentence objects
//	anything else          one plain sentence per line
type File struct {
	Path   string
	Source string
}

// NewFile returns a File source labelled with the file name.
func NewFile(path string) *File {
	return &File{Path: path, Source: "file"}
}

func (f *File) FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sentences, err := ReadSentences(f.Path)
	if err != nil {
		return nil, err
	}
	for i := range sentences {
		if sentences[i].Source == "" {
			sentences[i].Source = f.Source
		}
	}
	return Dedupe(Filter(sentences, qualityThreshold), nil), nil
}

// ReadSentences loads every sentence in path without filtering.
func ReadSentences(path string) ([]triplet.Sentence, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer fh.Close()

	var r io.Reader = fh
	name := path
	if strings.HasSuffix(name, ".zst") {
		zr, err := zstd.NewReader(fh)
		if err != nil {
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
		name = strings.TrimSuffix(name, ".zst")
	}

	switch {
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		var out []triplet.Sentence
		if err := yaml.NewDecoder(r).Decode(&out); err != nil && err != io.EOF {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return out, nil
	case strings.HasSuffix(name, ".jsonl"):
		return readJSONL(r, path)
	default:
		return readLines(r, path)
	}
}

func readJSONL(r io.Reader, path string) ([]triplet.Sentence, error) {
	var out []triplet.Sentence
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var s triplet.Sentence
		if strings.HasPrefix(raw, `"`) {
			if err := json.Unmarshal([]byte(raw), &s.Text); err != nil {
				return nil, fmt.Errorf("%s:%d: %w", path, line, err)
			}
		} else if err := json.Unmarshal([]byte(raw), &s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

func readLines(r io.Reader, path string) ([]triplet.Sentence, error) {
	var out []triplet.Sentence
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if t := strings.TrimSpace(sc.Text()); t != "" && !strings.HasPrefix(t, "#") {
			out = append(out, triplet.Sentence{Text: t})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// WriteJSONL writes sentences one per line, zstd-compressed when path ends
// in .zst.
func WriteJSONL(path string, sentences []triplet.Sentence) (err error) {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	defer func() {
		if cerr := fh.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = fh
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(fh)
		if err != nil {
			return fmt.Errorf("open zstd writer: %w", err)
		}
		defer func() {
			if cerr := zw.Close(); err == nil {
				err = cerr
			}
		}()
		w = zw
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, s := range sentences {
		if err := enc.Encode(s); err != nil {
			return fmt.Errorf("encode sentence: %w", err)
		}
	}
	return nil
}
