package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/whisper/chat-moderation/internal/messaging"
	"github.com/whisper/chat-moderation/internal/protocol"
)

// Requester performs one request/reply round trip. *messaging.NATSClient
// satisfies it.
type Requester interface {
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
}

// errMalformedReply marks replies that decoded but lack required fields.
var errMalformedReply = errors.New("classifier: malformed reply")

// Remote is a Classifier backed by the classifier service over NATS
// request/reply.
type Remote struct {
	requester Requester
}

// NewRemote creates a Remote classifier.
func NewRemote(requester Requester) *Remote {
	return &Remote{requester: requester}
}

// AnalyzeSpam implements Classifier.
func (r *Remote) AnalyzeSpam(ctx context.Context, text string, whitelist []string) (SpamAnalysis, error) {
	var reply protocol.SpamReply
	req := protocol.SpamRequest{Text: text, Whitelist: whitelist}
	if err := r.call(ctx, messaging.SubjectClassifySpam, req, &reply); err != nil {
		return SpamAnalysis{}, err
	}
	if reply.Error != "" {
		return SpamAnalysis{}, fmt.Errorf("classifier: spam: %s", reply.Error)
	}
	if reply.Score == nil {
		return SpamAnalysis{}, fmt.Errorf("%w: spam reply has no score", errMalformedReply)
	}

	analysis := SpamAnalysis{Score: *reply.Score}
	if reply.IsSpam != nil {
		analysis.IsSpam = *reply.IsSpam
	}
	return analysis, nil
}

// AnalyzeProfanity implements Classifier.
func (r *Remote) AnalyzeProfanity(ctx context.Context, text string) (ProfanityAnalysis, error) {
	var reply protocol.ProfanityReply
	if err := r.call(ctx, messaging.SubjectClassifyProfanity, protocol.ProfanityRequest{Text: text}, &reply); err != nil {
		return ProfanityAnalysis{}, err
	}
	if reply.Error != "" {
		return ProfanityAnalysis{}, fmt.Errorf("classifier: profanity: %s", reply.Error)
	}
	if reply.HasProfanity == nil || reply.Severity == nil {
		return ProfanityAnalysis{}, fmt.Errorf("%w: profanity reply missing has_profanity or severity", errMalformedReply)
	}
	return ProfanityAnalysis{
		HasProfanity: *reply.HasProfanity,
		Severity:     *reply.Severity,
		Type:         reply.Type,
	}, nil
}

func (r *Remote) call(ctx context.Context, subject string, req, reply interface{}) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("classifier: marshal %s request: %w", subject, err)
	}
	resp, err := r.requester.Request(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	// Wrong field types fail here and the adapter falls back to clean.
	if err := json.Unmarshal(resp, reply); err != nil {
		return fmt.Errorf("%w: %v", errMalformedReply, err)
	}
	return nil
}
