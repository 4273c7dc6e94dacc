// Package onnx provides the production scoring backend: ONNX text and URL
// classifiers loaded once at startup from a model bundle.
package onnx

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BundleManifest describes the contents of a model bundle directory. It is
// read from bundle.yaml at the bundle root.
type BundleManifest struct {
	// SpamModel is the bundle-relative path of the spam text classifier.
	SpamModel string `yaml:"spam_model"`
	// PhishingModel is the bundle-relative path of the phishing URL classifier.
	PhishingModel string `yaml:"phishing_model"`
	// Vocab is the bundle-relative path of the shared wordpiece vocab.
	Vocab string `yaml:"vocab"`
	// SeqLen is the tokenized sequence length both models were exported with.
	SeqLen int `yaml:"seq_len"`
	// SharedLibrary optionally points at the onnxruntime shared library.
	// Falls back to the ONNXRUNTIME_SHARED_LIBRARY_PATH env var.
	SharedLibrary string `yaml:"shared_library"`
}

// LoadManifest reads and validates bundle.yaml from a bundle directory.
func LoadManifest(bundleDir string) (*BundleManifest, error) {
	data, err := os.ReadFile(filepath.Join(bundleDir, "bundle.yaml"))
	if err != nil {
		return nil, fmt.Errorf("read bundle manifest: %w", err)
	}

	var m BundleManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse bundle manifest: %w", err)
	}

	if m.SpamModel == "" {
		m.SpamModel = "spam_classifier.onnx"
	}
	if m.PhishingModel == "" {
		m.PhishingModel = "phishing_classifier.onnx"
	}
	if m.Vocab == "" {
		m.Vocab = "vocab.txt"
	}
	if m.SeqLen <= 0 {
		m.SeqLen = 256
	}

	for _, rel := range []string{m.SpamModel, m.PhishingModel, m.Vocab} {
		path := filepath.Join(bundleDir, rel)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("bundle file missing at %s: %w", path, err)
		}
	}

	return &m, nil
}

func (m *BundleManifest) sharedLibraryPath() string {
	if m.SharedLibrary != "" {
		return m.SharedLibrary
	}
	return os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
}
