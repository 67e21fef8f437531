package notification

import (
	"fmt"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/pkg/errors"
)

// ResolvePoster selects the posting backend configured for the deployment.
// A value other than "direct" or "connector" is a misconfiguration and is
// rejected instead of silently falling back.
func ResolvePoster(cfg *config.Config, direct, proxy Poster) (Poster, error) {
	switch cfg.Posting.Backend {
	case "direct":
		return direct, nil
	case "connector":
		return proxy, nil
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownBackend, cfg.Posting.Backend)
	}
}
