package service

import (
	"sync"

	"github.com/boddenberg/payping-sync-go/internal/infra/localstate"
	"github.com/boddenberg/payping-sync-go/internal/port"

	"go.uber.org/zap"
)

// Onboarding exposes the first-run flag. The flag is read once when the
// service is created and written at most once, on completion.
type Onboarding struct {
	flags  port.FlagStore
	logger *zap.Logger

	mu       sync.Mutex
	complete bool
}

// NewOnboarding reads the persisted flag. A read failure is logged and the
// wizard is treated as not yet completed.
func NewOnboarding(flags port.FlagStore, logger *zap.Logger) *Onboarding {
	done, err := flags.Flag(localstate.OnboardingCompleteKey)
	if err != nil {
		logger.Warn("failed to read onboarding flag", zap.Error(err))
	}
	return &Onboarding{flags: flags, logger: logger, complete: done}
}

func (o *Onboarding) Complete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.complete
}

// MarkComplete persists the flag. Repeated calls are no-ops.
func (o *Onboarding) MarkComplete() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.complete {
		return nil
	}
	if err := o.flags.SetFlag(localstate.OnboardingCompleteKey, true); err != nil {
		return err
	}
	o.complete = true
	o.logger.Info("onboarding completed")
	return nil
}
