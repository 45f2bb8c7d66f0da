package secrets

import (
	"errors"
	"fmt"
)

const apiKeySetting = "anthropic_api_key"

// Settings is the key/value store sealed values are kept in.
type Settings interface {
	SaveSetting(key, value string) error
	GetSetting(key string) (string, error)
	DeleteSetting(key string) error
}

// Credentials persists the model API key sealed in Settings.
type Credentials struct {
	settings Settings
	box      *Box
	// notFound reports whether a GetSetting error means the key is absent.
	notFound func(error) bool
}

func NewCredentials(settings Settings, box *Box, notFound func(error) bool) *Credentials {
	if notFound == nil {
		notFound = func(error) bool { return false }
	}
	return &Credentials{settings: settings, box: box, notFound: notFound}
}

func (c *Credentials) SaveAPIKey(key string) error {
	if key == "" {
		return c.ClearAPIKey()
	}
	sealed, err := c.box.Seal(key)
	if err != nil {
		return err
	}
	if err := c.settings.SaveSetting(apiKeySetting, sealed); err != nil {
		return fmt.Errorf("save api key: %w", err)
	}
	return nil
}

// LoadAPIKey returns "" with a nil error when no key has been saved.
func (c *Credentials) LoadAPIKey() (string, error) {
	sealed, err := c.settings.GetSetting(apiKeySetting)
	if err != nil {
		if c.notFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("load api key: %w", err)
	}
	key, err := c.box.Open(sealed)
	if errors.Is(err, ErrDecrypt) {
		return "", fmt.Errorf("stored api key: %w", err)
	}
	return key, err
}

func (c *Credentials) ClearAPIKey() error {
	return c.settings.DeleteSetting(apiKeySetting)
}
