package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceRoute describes one service's primary routing and its secondary
// subdomain. Order in the catalog is the failover priority, highest impact
// first.
type ServiceRoute struct {
	Name         string `yaml:"name"`
	RoutePattern string `yaml:"route_pattern"`
	Script       string `yaml:"script"`
	Subdomain    string `yaml:"subdomain"`
}

// Catalog is the parsed YAML structure describing tracked services and
// allowance overrides:
//
//	limits: {worker_requests: 10000000, ...}
//	services: [{name, route_pattern, script, subdomain}]
type Catalog struct {
	Limits   map[string]int64 `yaml:"limits"`
	Services []ServiceRoute   `yaml:"services"`
}

// DefaultCatalog returns the built-in service catalog for a zone, used when
// no catalog file is configured.
func DefaultCatalog(zoneName string) Catalog {
	names := []string{"api", "auth", "search", "webhooks", "static"}
	services := make([]ServiceRoute, 0, len(names))
	for _, name := range names {
		services = append(services, ServiceRoute{
			Name:         name,
			RoutePattern: fmt.Sprintf("%s/%s/*", zoneName, name),
			Script:       name + "-worker",
			Subdomain:    name,
		})
	}
	return Catalog{Services: services}
}

// LoadCatalog parses a YAML catalog file from the given path. An empty path
// returns the default catalog for the zone.
func LoadCatalog(path, zoneName string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(zoneName), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog file: %w", err)
	}

	if err := validateCatalog(catalog); err != nil {
		return Catalog{}, err
	}

	return catalog, nil
}

// Priority returns the ordered service names, highest impact first.
func (c Catalog) Priority() []string {
	names := make([]string, 0, len(c.Services))
	for _, service := range c.Services {
		names = append(names, service.Name)
	}
	return names
}

// Route returns the route metadata for a service name.
func (c Catalog) Route(name string) (ServiceRoute, bool) {
	for _, service := range c.Services {
		if service.Name == name {
			return service, true
		}
	}
	return ServiceRoute{}, false
}

func validateCatalog(catalog Catalog) error {
	if len(catalog.Services) == 0 {
		return fmt.Errorf("catalog file contains no services")
	}

	seen := make(map[string]bool)

	for i, service := range catalog.Services {
		if service.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if service.RoutePattern == "" {
			return fmt.Errorf("service %q: route_pattern is required", service.Name)
		}
		if service.Script == "" {
			return fmt.Errorf("service %q: script is required", service.Name)
		}
		if service.Subdomain == "" {
			return fmt.Errorf("service %q: subdomain is required", service.Name)
		}
		if seen[service.Name] {
			return fmt.Errorf("service %q: duplicate name", service.Name)
		}
		seen[service.Name] = true
	}

	for name, limit := range catalog.Limits {
		if limit <= 0 {
			return fmt.Errorf("limit %q: must be greater than zero", name)
		}
	}

	return nil
}
