package dispute

import (
	"context"
	"log/slog"

	id "credence/pkg/domain"
)

// Slasher is the economic-incentive collaborator invoked against the losing
// respondent when the challenger wins. Fire-and-forget from the arbiter's
// perspective; failure handling belongs to the collaborator.
type Slasher interface {
	Slash(ctx context.Context, subject id.SubjectID, reason string) error
}

// LogSlasher records slash requests in the log. Default wiring for
// deployments without a staking module.
type LogSlasher struct {
	logger *slog.Logger
}

func NewLogSlasher(logger *slog.Logger) *LogSlasher {
	return &LogSlasher{logger: logger}
}

func (s *LogSlasher) Slash(ctx context.Context, subject id.SubjectID, reason string) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "slash requested", "subject", subject.String(), "reason", reason)
	}
	return nil
}
