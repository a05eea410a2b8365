package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/pipeline"
	"github.com/lexiqai/speech-relay/internal/ratelimit"
	"github.com/lexiqai/speech-relay/internal/tts"
	"github.com/lexiqai/speech-relay/internal/verification"
)

const maxBodyBytes = 1 << 20

// genericFailure is the only message internal errors ever produce
const genericFailure = "Failed to generate audio"

// SubmitRequest is the body of POST /api/tts and the first websocket message
type SubmitRequest struct {
	Text           string `json:"text"`
	Voice          string `json:"voice"`
	Type           string `json:"type"`
	Cookie         string `json:"cookie,omitempty"`
	Credential     string `json:"credential,omitempty"`
	RecaptchaToken string `json:"recaptchaToken,omitempty"`
}

// ParseRequest is the body of POST /api/tts/parse
type ParseRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// ParsedSegment is one subtitle cue in a parse preview
type ParsedSegment struct {
	Index    int     `json:"index"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// ParseResponse previews what a submission would synthesize
type ParseResponse struct {
	Type     string          `json:"type"`
	Count    int             `json:"count"`
	Segments []ParsedSegment `json:"segments,omitempty"`
	Chunks   []string        `json:"chunks,omitempty"`
}

// VoicesResponse lists the voices of the configured provider
type VoicesResponse struct {
	Provider string      `json:"provider"`
	Voices   []tts.Voice `json:"voices"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (r SubmitRequest) submission(clientKey string) pipeline.Submission {
	credential := r.Credential
	if credential == "" {
		credential = r.Cookie
	}
	return pipeline.Submission{
		Text:              r.Text,
		Voice:             r.Voice,
		Type:              r.Type,
		Credential:        credential,
		VerificationToken: r.RecaptchaToken,
		ClientKey:         clientKey,
	}
}

// handleSubmit handles POST /api/tts
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to decode submission")
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	result, err := s.orch.Run(r.Context(), req.submission(ClientIP(r, s.cfg.TrustProxyHeaders)), nil)
	if err != nil {
		status, msg := s.describeError(err)
		writeJSON(w, status, ErrorResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleParse handles POST /api/tts/parse
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if n := utf8.RuneCountInString(req.Text); n < 1 || n > s.cfg.MaxTextLength {
		status, msg := s.describeError(pipeline.ErrTextLength)
		writeJSON(w, status, ErrorResponse{Error: msg})
		return
	}

	plan, err := pipeline.Prepare(req.Type, req.Text, s.cfg.ChunkSize)
	if err != nil {
		status, msg := s.describeError(err)
		writeJSON(w, status, ErrorResponse{Error: msg})
		return
	}

	resp := ParseResponse{Type: plan.Type, Count: plan.Len()}
	if plan.Type == pipeline.TypeSRT {
		resp.Segments = make([]ParsedSegment, len(plan.Segments))
		for i, seg := range plan.Segments {
			resp.Segments[i] = ParsedSegment{
				Index:    seg.Index,
				Start:    seg.Start,
				End:      seg.End,
				Duration: seg.Duration(),
				Text:     seg.Text,
			}
		}
	} else {
		resp.Chunks = plan.Texts
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVoices handles GET /api/voices
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VoicesResponse{
		Provider: s.cfg.SpeechProvider,
		Voices:   tts.Voices(s.cfg.SpeechProvider),
	})
}

// describeError maps a run error to a status and a caller-safe message
func (s *Server) describeError(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrMissingCredential):
		if s.cfg.SpeechProvider == config.ProviderTikTok {
			return http.StatusBadRequest, "TikTok cookie is required"
		}
		return http.StatusBadRequest, "API key is required"
	case errors.Is(err, pipeline.ErrTextLength):
		return http.StatusBadRequest, fmt.Sprintf("Text must be between 1 and %d characters", s.cfg.MaxTextLength)
	case errors.Is(err, pipeline.ErrUnknownVoice):
		return http.StatusBadRequest, "Invalid voice selected"
	case errors.Is(err, pipeline.ErrInvalidType):
		return http.StatusBadRequest, "Type must be text or srt"
	case errors.Is(err, pipeline.ErrNothingToProcess):
		return http.StatusBadRequest, "No valid text to process"
	case errors.Is(err, verification.ErrMissingToken):
		return http.StatusForbidden, "Verification token is required"
	case errors.Is(err, verification.ErrRejected):
		return http.StatusForbidden, "Verification failed"
	case errors.Is(err, ratelimit.ErrLimited):
		return http.StatusTooManyRequests, "Too many requests, please try again later"
	default:
		// Upstream, assembly, misconfiguration and anything unexpected
		return http.StatusInternalServerError, genericFailure
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
