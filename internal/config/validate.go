package config

import (
	"errors"
	"fmt"
)

// Validate checks the fields every run depends on.
func (c *Config) Validate() error {
	var errs []error

	if c.Default.WorkDir == "" {
		errs = append(errs, errors.New("default.work_dir is required"))
	}
	if c.Default.Port <= 0 || c.Default.Port > 65535 {
		errs = append(errs, fmt.Errorf("default.port %d is out of range", c.Default.Port))
	}
	if c.OpenStack.Host == "" {
		errs = append(errs, errors.New("openstack.host is required"))
	}
	if c.OpenStack.AuthURL == "" {
		errs = append(errs, errors.New("openstack.auth_url is required"))
	}
	if c.OpenStack.User == "" {
		errs = append(errs, errors.New("openstack.user is required"))
	}
	if c.OpenStack.ProjectID == "" {
		errs = append(errs, errors.New("openstack.project_id is required"))
	}
	if c.OpenStack.ExternalNetwork == "" || c.OpenStack.ExternalNetworkName == "" {
		errs = append(errs, errors.New("openstack.external_network and openstack.external_network_name are required"))
	}
	if c.Archive.Enabled && (c.Archive.Endpoint == "" || c.Archive.Bucket == "") {
		errs = append(errs, errors.New("archive.endpoint and archive.bucket are required when archive is enabled"))
	}

	return errors.Join(errs...)
}
