// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/report-engine/pkg/types"
)

// Export is the file form of a thread: its latest report, version history,
// and cited papers.
type Export struct {
	ThreadID string            `json:"thread_id" yaml:"thread_id"`
	Version  int               `json:"version" yaml:"version"`
	Report   *types.Report     `json:"report" yaml:"report"`
	History  []Version         `json:"history" yaml:"history"`
	Papers   []types.PaperMeta `json:"papers" yaml:"papers"`
}

// ExportYAML writes threadID to dataDir/exports/<thread>.yaml and returns the
// path.
func (s *Store) ExportYAML(ctx context.Context, threadID string) (string, error) {
	exp, err := s.export(ctx, threadID)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML: %w", err)
	}
	return s.writeExport(threadID+".yaml", data)
}

// ExportJSON writes threadID to dataDir/exports/<thread>.json and returns the
// path.
func (s *Store) ExportJSON(ctx context.Context, threadID string) (string, error) {
	exp, err := s.export(ctx, threadID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(exp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return s.writeExport(threadID+".json", data)
}

func (s *Store) export(ctx context.Context, threadID string) (*Export, error) {
	report, err := s.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	history, err := s.History(ctx, threadID)
	if err != nil {
		return nil, err
	}
	papers, err := s.Papers(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return &Export{
		ThreadID: threadID,
		Version:  history[len(history)-1].Version,
		Report:   report,
		History:  history,
		Papers:   papers,
	}, nil
}

func (s *Store) writeExport(name string, data []byte) (string, error) {
	dir := filepath.Join(s.dataDir, exportDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
