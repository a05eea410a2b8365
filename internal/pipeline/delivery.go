package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/lexiqai/speech-relay/internal/audio"
	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/storage"
)

// Result is what a successful run hands back to the caller
type Result struct {
	RunID           string `json:"runId,omitempty"`
	URL             string `json:"url,omitempty"`
	AudioBase64     string `json:"audioBase64,omitempty"`
	MimeType        string `json:"mimeType,omitempty"`
	TimingPreserved bool   `json:"timingPreserved"`
	Warning         string `json:"warning,omitempty"`
	Segments        int    `json:"segments"`
}

// Delivery packages an assembled track for the caller
type Delivery interface {
	Deliver(ctx context.Context, track *audio.Track) (*Result, error)
}

// ArtifactStore persists tracks and returns a retrievable reference
type ArtifactStore interface {
	Save(data []byte) (*storage.Artifact, error)
}

// PersistToRetentionStore writes the track to the retention store and returns its URL
type PersistToRetentionStore struct {
	Store ArtifactStore
}

// Deliver stores the track
func (p PersistToRetentionStore) Deliver(ctx context.Context, track *audio.Track) (*Result, error) {
	artifact, err := p.Store.Save(track.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to persist track: %w", err)
	}
	return &Result{URL: artifact.URL}, nil
}

// ReturnInline returns the track as a base64 payload
type ReturnInline struct{}

// Deliver encodes the track
func (ReturnInline) Deliver(ctx context.Context, track *audio.Track) (*Result, error) {
	mime := track.MimeType
	if mime == "" {
		mime = audio.MimeTypeMP3
	}
	return &Result{
		AudioBase64: base64.StdEncoding.EncodeToString(track.Data),
		MimeType:    mime,
	}, nil
}

// NewDelivery selects the strategy named by DELIVERY_MODE
func NewDelivery(cfg *config.Config, store ArtifactStore) (Delivery, error) {
	switch cfg.DeliveryMode {
	case config.DeliveryPersist:
		if store == nil {
			return nil, fmt.Errorf("persist delivery requires an artifact store")
		}
		return PersistToRetentionStore{Store: store}, nil
	case config.DeliveryInline:
		return ReturnInline{}, nil
	default:
		return nil, fmt.Errorf("unknown delivery mode %q", cfg.DeliveryMode)
	}
}
