package onnx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// model wraps one ONNX session with its pre-allocated tensors. Sessions
// reuse their input/output buffers, so Run is serialized with a mutex.
type model struct {
	session       *ort.AdvancedSession
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	output        *ort.Tensor[float32]
	numClasses    int

	mu sync.Mutex
}

// Scorer scores text and URLs with two ONNX classifiers sharing a tokenizer.
type Scorer struct {
	tokenizer *wordPieceTokenizer
	seqLen    int
	spam      *model
	phishing  *model
}

// NewScorer loads both classifiers from a bundle directory. The onnxruntime
// environment is initialized once for the process.
func NewScorer(bundleDir string) (*Scorer, error) {
	if bundleDir == "" {
		return nil, errors.New("bundle dir is empty")
	}

	manifest, err := LoadManifest(bundleDir)
	if err != nil {
		return nil, err
	}

	if libPath := manifest.sharedLibraryPath(); libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	} else {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH or shared_library in bundle.yaml")
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	tokenizer, err := loadTokenizer(filepath.Join(bundleDir, manifest.Vocab))
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	spam, err := loadModel(filepath.Join(bundleDir, manifest.SpamModel), manifest.SeqLen)
	if err != nil {
		return nil, fmt.Errorf("load spam model: %w", err)
	}

	phishing, err := loadModel(filepath.Join(bundleDir, manifest.PhishingModel), manifest.SeqLen)
	if err != nil {
		spam.close()
		return nil, fmt.Errorf("load phishing model: %w", err)
	}

	return &Scorer{
		tokenizer: tokenizer,
		seqLen:    manifest.SeqLen,
		spam:      spam,
		phishing:  phishing,
	}, nil
}

func loadModel(modelPath string, seqLen int) (*model, error) {
	const numClasses = 2

	inputShape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		return nil, fmt.Errorf("allocate input_ids tensor: %w", err)
	}
	attnMask, err := ort.NewEmptyTensor[int64](inputShape)
	if err != nil {
		inputIDs.Destroy()
		return nil, fmt.Errorf("allocate attention_mask tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, numClasses))
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		return nil, fmt.Errorf("allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]ort.Value{inputIDs, attnMask},
		[]ort.Value{output},
		nil,
	)
	if err != nil {
		inputIDs.Destroy()
		attnMask.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &model{
		session:       session,
		inputIDs:      inputIDs,
		attentionMask: attnMask,
		output:        output,
		numClasses:    numClasses,
	}, nil
}

// ScoreText returns the spam probability of the text in [0, 1].
func (s *Scorer) ScoreText(ctx context.Context, text string) (float64, error) {
	return s.run(ctx, s.spam, text)
}

// ScoreURL returns the phishing probability of the URL in [0, 1].
func (s *Scorer) ScoreURL(ctx context.Context, url string) (float64, error) {
	return s.run(ctx, s.phishing, url)
}

func (s *Scorer) run(ctx context.Context, m *model, input string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ids, attn := s.tokenizer.encode(input, s.seqLen)

	m.mu.Lock()
	defer m.mu.Unlock()

	copy(m.inputIDs.GetData(), ids)
	copy(m.attentionMask.GetData(), attn)

	if err := m.session.Run(); err != nil {
		return 0, fmt.Errorf("onnx run: %w", err)
	}

	return positiveProbability(m.output.GetData()), nil
}

// positiveProbability maps raw logits to the positive-class probability:
// a single logit is passed through sigmoid, a two-class head through softmax.
func positiveProbability(logits []float32) float64 {
	switch len(logits) {
	case 0:
		return 0
	case 1:
		return 1.0 / (1.0 + math.Exp(-float64(logits[0])))
	default:
		neg := float64(logits[0])
		pos := float64(logits[1])
		max := math.Max(neg, pos)
		expNeg := math.Exp(neg - max)
		expPos := math.Exp(pos - max)
		return expPos / (expNeg + expPos)
	}
}

// Close releases both sessions and their tensors.
func (s *Scorer) Close() {
	s.spam.close()
	s.phishing.close()
}

func (m *model) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		m.session.Destroy()
		m.session = nil
	}
	m.inputIDs.Destroy()
	m.attentionMask.Destroy()
	m.output.Destroy()
}
