// internal/browser/stealth.go
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/reportcast/api/schemas"
)

//go:embed evasions.js
var evasionsScript string

// ApplyPersona makes the tab present the persona: user agent, viewport and
// the navigator properties some identity providers check before showing a
// login form.
func ApplyPersona(persona schemas.Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		setUserAgent(persona, l),
		setDeviceMetrics(persona, l),
		setEnvironment(persona, l),
		injectEvasions(persona, l),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Persona applied.", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}

// EvasionScript renders the init script for persona.
func EvasionScript(persona schemas.Persona) (string, error) {
	data, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("stealth: failed to marshal persona: %w", err)
	}
	return fmt.Sprintf("const REPORTCAST_PERSONA = %s;\n%s", data, evasionsScript), nil
}

func injectEvasions(persona schemas.Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		script, err := EvasionScript(persona)
		if err != nil {
			return err
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			logger.Error("Failed to register evasion script.", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgent(persona schemas.Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set user agent override.", zap.Error(err))
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona schemas.Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Width <= 0 || persona.Height <= 0 {
			return nil
		}
		scale := persona.DeviceScaleFactor
		if scale <= 0 {
			scale = 1
		}
		if err := emulation.SetDeviceMetricsOverride(persona.Width, persona.Height, scale, persona.Mobile).Do(ctx); err != nil {
			logger.Error("Failed to set device metrics override.", zap.Error(err))
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}

func setEnvironment(persona schemas.Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Timezone != "" {
			if err := emulation.SetTimezoneOverride(persona.Timezone).Do(ctx); err != nil {
				logger.Error("Failed to set timezone override.", zap.Error(err))
				return fmt.Errorf("stealth: failed to set timezone: %w", err)
			}
		}
		if persona.Locale != "" {
			if err := emulation.SetLocaleOverride().WithLocale(strings.ReplaceAll(persona.Locale, "_", "-")).Do(ctx); err != nil {
				logger.Error("Failed to set locale override.", zap.Error(err))
				return fmt.Errorf("stealth: failed to set locale: %w", err)
			}
		}
		return nil
	})
}
