package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Strategy keys accepted by the runner registries. Validation happens here
// so an unknown key fails before any handler starts.
var (
	checkStrategies    = map[string]struct{}{"nonempty": {}, "format": {}}
	harvestStrategies  = map[string]struct{}{"csv": {}, "exec": {}}
	pathStrategies     = map[string]struct{}{"basename": {}, "dated": {}}
	recipientProtocols = map[string]struct{}{"email": {}, "http": {}}
	storageURISchemes  = map[string]struct{}{"file": {}, "s3": {}}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateCheck(); err != nil {
		return err
	}
	if err := c.validateHarvest(); err != nil {
		return err
	}
	if err := c.validateNotify(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if strings.TrimSpace(c.Pipeline.Name) == "" {
		return errors.New("pipeline.name must be set")
	}
	for _, ext := range c.Pipeline.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("pipeline.allowed_extensions entry %q must start with a dot", ext)
		}
	}
	if _, ok := pathStrategies[c.Pipeline.DestPathStrategy]; !ok {
		return fmt.Errorf("pipeline.dest_path_strategy %q is not a known strategy", c.Pipeline.DestPathStrategy)
	}
	if _, ok := pathStrategies[c.Pipeline.ArchivePathStrategy]; !ok {
		return fmt.Errorf("pipeline.archive_path_strategy %q is not a known strategy", c.Pipeline.ArchivePathStrategy)
	}
	for _, pattern := range append(append([]string{}, c.Pipeline.IncludeRegexes...), c.Pipeline.ExcludeRegexes...) {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("pipeline regex %q: %w", pattern, err)
		}
	}
	if err := validatePublishTypeName(c.Pipeline.DefaultAdditionType, "pipeline.default_addition_publish_type"); err != nil {
		return err
	}
	return validatePublishTypeName(c.Pipeline.DefaultDeletionType, "pipeline.default_deletion_publish_type")
}

func (c *Config) validateStorage() error {
	if err := validateStorageURI(c.Storage.UploadURI, "storage.upload_uri"); err != nil {
		return err
	}
	if c.Pipeline.ArchiveInputFile || c.Storage.ArchiveURI != "" {
		if err := validateStorageURI(c.Storage.ArchiveURI, "storage.archive_uri"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCheck() error {
	if _, ok := checkStrategies[c.Check.Strategy]; !ok {
		return fmt.Errorf("check.strategy %q is not a known strategy", c.Check.Strategy)
	}
	return nil
}

func (c *Config) validateHarvest() error {
	if _, ok := harvestStrategies[c.Harvest.Strategy]; !ok {
		return fmt.Errorf("harvest.strategy %q is not a known strategy", c.Harvest.Strategy)
	}
	if c.Harvest.Strategy == "exec" && len(c.Harvest.Command) == 0 {
		return errors.New("harvest.command must be set when harvest.strategy is exec")
	}
	return nil
}

func (c *Config) validateNotify() error {
	lists := [][]string{c.Notify.OwnerList, c.Notify.SuccessList, c.Notify.ErrorList}
	for _, list := range lists {
		for _, recipient := range list {
			protocol, _, found := strings.Cut(recipient, ":")
			if !found {
				return fmt.Errorf("notify recipient %q must be protocol-prefixed", recipient)
			}
			if _, ok := recipientProtocols[protocol]; !ok {
				return fmt.Errorf("notify recipient %q uses unknown protocol %q", recipient, protocol)
			}
		}
	}
	if strings.TrimSpace(c.Notify.FromAddress) == "" {
		return errors.New("notify.from_address must be set")
	}
	return nil
}

func validatePublishTypeName(value, field string) error {
	known := map[string]struct{}{
		"no_action": {}, "archive_only": {}, "upload_only": {}, "harvest_only": {},
		"harvest_archive": {}, "harvest_upload": {}, "harvest_archive_upload": {},
		"unharvest_only": {}, "delete_only": {}, "delete_unharvest": {},
	}
	if _, ok := known[value]; !ok {
		return fmt.Errorf("%s %q is not a known publish type", field, value)
	}
	return nil
}

func validateStorageURI(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s must be set", field)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if _, ok := storageURISchemes[u.Scheme]; !ok {
		return fmt.Errorf("%s scheme %q is not supported (file, s3)", field, u.Scheme)
	}
	if u.Scheme == "file" && u.Host != "" {
		return fmt.Errorf("%s must be an absolute local path, got host %q", field, u.Host)
	}
	return nil
}
