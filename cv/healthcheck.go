package cv

import (
	"fmt"

	fthealth "github.com/Financial-Times/go-fthealth/v1_1"
)

type checker interface {
	Healthchecks() []fthealth.Check
}

// HealthService runs the archive writer checks before a conversion starts.
type HealthService struct {
	Checks []fthealth.Check
}

func NewHealthService(svc checker) *HealthService {
	return &HealthService{Checks: svc.Healthchecks()}
}

// Preflight returns the error of the first failing check.
func (h *HealthService) Preflight() error {
	for _, check := range h.Checks {
		if msg, err := check.Checker(); err != nil {
			if msg != "" {
				return fmt.Errorf("%s: %s: %w", check.Name, msg, err)
			}
			return fmt.Errorf("%s: %w", check.Name, err)
		}
	}
	return nil
}
