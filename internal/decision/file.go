package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"daily-equity-trader/internal/logging"
	"daily-equity-trader/internal/models"
)

// FileEngine reads a decision dropped into an inbox directory by an external
// process. The inbox holds the same files an LLM answer is split into.
type FileEngine struct {
	inbox  string
	logger zerolog.Logger
}

// NewFileEngine creates an engine reading from inbox.
func NewFileEngine(inbox string, logger zerolog.Logger) *FileEngine {
	return &FileEngine{inbox: inbox, logger: logger}
}

func (e *FileEngine) Decide(ctx context.Context, in Input) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logging.WithOperation(logging.FromContext(ctx, e.logger), "decide_file")

	sections := map[string]string{}
	for _, name := range OutputNames {
		data, err := os.ReadFile(filepath.Join(e.inbox, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		sections[name] = string(data)
	}

	if _, ok := sections[RunStatusName]; !ok {
		log.Warn().Str("inbox", e.inbox).Msg("No decision in inbox")
		return &Outcome{Status: models.RunStatusBlocked, Reason: "no decision in inbox"}, nil
	}

	var header struct {
		AsOfDate models.Date `json:"as_of_date"`
	}
	if err := json.Unmarshal([]byte(sections[RunStatusName]), &header); err == nil &&
		!header.AsOfDate.IsZero() && !in.AsOf.IsZero() && header.AsOfDate != in.AsOf {
		log.Warn().
			Str("decision_date", header.AsOfDate.String()).
			Str("as_of", in.AsOf.String()).
			Msg("Stale decision in inbox")
		return &Outcome{
			Status: models.RunStatusBlocked,
			Reason: fmt.Sprintf("stale decision dated %s", header.AsOfDate),
		}, nil
	}

	return outcomeFromSections(sections, log)
}
