package dataset

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var ErrNoPairs = errors.New("no matching metadata and elements pairs found")

const (
	metadataSuffix   = "_metadata.json"
	elementsSuffix   = "_elements.json"
	integratedSuffix = "_integrated.json"
	summaryFile      = "merge_summary.json"
)

// Pair: файлы Phase 1 и Phase 2 одного кадра.
type Pair struct {
	Base     string
	Metadata string
	Elements string
}

// FindPairs ищет <base>_metadata.json с парным <base>_elements.json.
// Файлы без пары пропускаются с предупреждением.
func FindPairs(dir string) ([]Pair, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+metadataSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	var pairs []Pair
	for _, metadata := range matches {
		base := strings.TrimSuffix(filepath.Base(metadata), metadataSuffix)
		elements := filepath.Join(dir, base+elementsSuffix)
		if _, err := os.Stat(elements); err != nil {
			log.Printf("[DATASET] No elements file for %s", filepath.Base(metadata))
			continue
		}
		pairs = append(pairs, Pair{Base: base, Metadata: metadata, Elements: elements})
	}
	return pairs, nil
}

// ============================================================
// Batch merge
// ============================================================

// Merger объединяет все пары каталога Input в каталог Output.
type Merger struct {
	Input      string
	Output     string // по умолчанию <Input>/integrated
	AddPrompts bool
	DryRun     bool
	Now        func() time.Time
}

type Summary struct {
	MergeTimestamp   string   `json:"merge_timestamp"`
	InputDirectory   string   `json:"input_directory"`
	OutputDirectory  string   `json:"output_directory"`
	TotalPairs       int      `json:"total_pairs"`
	SuccessfulMerges int      `json:"successful_merges"`
	MergedFiles      []string `json:"merged_files"`
}

// Run выполняет слияние. Ошибка одной пары не прерывает остальные.
// Сводка пишется, только если хотя бы одна пара объединена.
func (m *Merger) Run() (*Summary, error) {
	now := m.Now
	if now == nil {
		now = time.Now
	}

	info, err := os.Stat(m.Input)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input directory: %s is not a directory", m.Input)
	}

	output := m.Output
	if output == "" {
		output = filepath.Join(m.Input, "integrated")
	}

	pairs, err := FindPairs(m.Input)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, ErrNoPairs
	}
	log.Printf("[DATASET] Found %d pairs to merge", len(pairs))

	if !m.DryRun {
		if err := os.MkdirAll(output, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	summary := &Summary{
		InputDirectory:  m.Input,
		OutputDirectory: output,
		TotalPairs:      len(pairs),
		MergedFiles:     []string{},
	}

	for _, p := range pairs {
		log.Printf("[DATASET] Merging %s + %s", filepath.Base(p.Metadata), filepath.Base(p.Elements))
		if m.DryRun {
			continue
		}
		if err := m.mergePair(p, output, now()); err != nil {
			log.Printf("[DATASET] Error merging %s: %v", p.Base, err)
			continue
		}
		summary.SuccessfulMerges++
		summary.MergedFiles = append(summary.MergedFiles, p.Base)
	}

	log.Printf("[DATASET] Merged %d of %d pairs", summary.SuccessfulMerges, len(pairs))
	if m.DryRun || summary.SuccessfulMerges == 0 {
		return summary, nil
	}

	summary.MergeTimestamp = now().Format(time.RFC3339)
	data, err := encodeFile(summary)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(output, summaryFile), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary: %w", err)
	}
	return summary, nil
}

func (m *Merger) mergePair(p Pair, output string, now time.Time) error {
	phase1, err := os.ReadFile(p.Metadata)
	if err != nil {
		return err
	}
	phase2, err := os.ReadFile(p.Elements)
	if err != nil {
		return err
	}

	doc, err := Merge(phase1, phase2, now, m.AddPrompts)
	if err != nil {
		return err
	}
	if doc.Prompt != "" {
		log.Printf("[DATASET] Prompt: %s", doc.Prompt)
	}

	data, err := encodeFile(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(output, p.Base+integratedSuffix), data, 0644)
}
