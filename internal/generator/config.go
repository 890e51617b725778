package generator

import (
	"fmt"
	"os"

	"github.com/torosent/vuload/internal/config"
	"github.com/torosent/vuload/internal/feeder"
)

// FromConfig builds the request template described by cfg, reading the body file
// and opening the feeder when configured. The returned feeder, if any, is owned by
// the caller.
func FromConfig(cfg config.Config) (*TemplateGenerator, feeder.Feeder, error) {
	body := cfg.Body
	if cfg.BodyFile != "" {
		data, err := os.ReadFile(cfg.BodyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("read body file: %w", err)
		}
		body = string(data)
	}

	var f feeder.Feeder
	if cfg.Feeder.Path != "" {
		var err error
		f, err = feeder.Open(cfg.Feeder.Type, cfg.Feeder.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("feeder: %w", err)
		}
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return NewTemplate(Template{
		Method:  cfg.Method,
		URL:     cfg.TargetURL,
		Headers: headers,
		Body:    body,
	}, f), f, nil
}
