package main

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// FilterConfig represents the filtering configuration
type FilterConfig struct {
	IncludeCompartments []string `yaml:"include_compartments"`
	ExcludeCompartments []string `yaml:"exclude_compartments"`
	IncludeCategories   []string `yaml:"include_categories"`
	ExcludeCategories   []string `yaml:"exclude_categories"`
	NamePattern         string   `yaml:"name_pattern"`
	ExcludeNamePattern  string   `yaml:"exclude_name_pattern"`
}

// CompiledFilters holds the regex patterns compiled once per run
type CompiledFilters struct {
	NameRegex        *regexp.Regexp
	ExcludeNameRegex *regexp.Regexp
}

// categoryAliases maps CLI-friendly names to categories
var categoryAliases = map[string]Category{
	"compute":                CategoryCompute,
	"compute_instances":      CategoryCompute,
	"instances":              CategoryCompute,
	"databases":              CategoryDatabases,
	"database_systems":       CategoryDatabases,
	"db_systems":             CategoryDatabases,
	"networking":             CategoryNetworking,
	"load_balancers":         CategoryNetworking,
	"object_storage":         CategoryObjectStorage,
	"object_storage_buckets": CategoryObjectStorage,
	"buckets":                CategoryObjectStorage,
}

// ValidateFilterConfig validates the filter configuration
func ValidateFilterConfig(filter FilterConfig) error {
	for _, ocid := range filter.IncludeCompartments {
		if !isValidCompartmentOCID(ocid) {
			return fmt.Errorf("invalid compartment OCID format: %s", ocid)
		}
	}
	for _, ocid := range filter.ExcludeCompartments {
		if !isValidCompartmentOCID(ocid) {
			return fmt.Errorf("invalid compartment OCID format: %s", ocid)
		}
	}

	for _, name := range append(append([]string{}, filter.IncludeCategories...), filter.ExcludeCategories...) {
		if _, ok := normalizeCategory(name); !ok {
			return fmt.Errorf("unknown category '%s', supported: %v", name, supportedCategoryNames())
		}
	}

	if _, err := CompileFilters(filter); err != nil {
		return err
	}

	return nil
}

// CompileFilters compiles regex patterns for efficient matching
func CompileFilters(filter FilterConfig) (*CompiledFilters, error) {
	compiled := &CompiledFilters{}

	if filter.NamePattern != "" {
		regex, err := regexp.Compile(filter.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid name pattern '%s': %w", filter.NamePattern, err)
		}
		compiled.NameRegex = regex
	}

	if filter.ExcludeNamePattern != "" {
		regex, err := regexp.Compile(filter.ExcludeNamePattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude name pattern '%s': %w", filter.ExcludeNamePattern, err)
		}
		compiled.ExcludeNameRegex = regex
	}

	return compiled, nil
}

// ApplyCompartmentFilter filters compartments based on include/exclude lists
func ApplyCompartmentFilter(compartments []Compartment, filter FilterConfig) []Compartment {
	if len(filter.IncludeCompartments) == 0 && len(filter.ExcludeCompartments) == 0 {
		return compartments
	}

	var filtered []Compartment
	for _, compartment := range compartments {
		if len(filter.IncludeCompartments) > 0 && !stringInSlice(compartment.ID, filter.IncludeCompartments) {
			continue
		}
		if stringInSlice(compartment.ID, filter.ExcludeCompartments) {
			continue
		}
		filtered = append(filtered, compartment)
	}

	return filtered
}

// ApplyCategoryFilter checks if a category should be collected
func ApplyCategoryFilter(category Category, filter FilterConfig) bool {
	if len(filter.IncludeCategories) > 0 {
		included := false
		for _, name := range filter.IncludeCategories {
			if c, ok := normalizeCategory(name); ok && c == category {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, name := range filter.ExcludeCategories {
		if c, ok := normalizeCategory(name); ok && c == category {
			return false
		}
	}

	return true
}

// ApplyNameFilter checks if a resource name matches the filter criteria
func ApplyNameFilter(resourceName string, compiled *CompiledFilters) bool {
	if compiled == nil {
		return true
	}
	if compiled.NameRegex != nil && !compiled.NameRegex.MatchString(resourceName) {
		return false
	}
	if compiled.ExcludeNameRegex != nil && compiled.ExcludeNameRegex.MatchString(resourceName) {
		return false
	}
	return true
}

// isValidCompartmentOCID validates the OCID format for compartments and tenancies
func isValidCompartmentOCID(ocid string) bool {
	return strings.HasPrefix(ocid, "ocid1.compartment.") || strings.HasPrefix(ocid, "ocid1.tenancy.")
}

// normalizeCategory accepts an alias or a category label
func normalizeCategory(name string) (Category, bool) {
	if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, true
	}
	for _, c := range Categories {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

func supportedCategoryNames() []string {
	names := make([]string, 0, len(categoryAliases))
	for alias := range categoryAliases {
		names = append(names, alias)
	}
	sort.Strings(names)
	return names
}

// stringInSlice checks if a string exists in a slice
func stringInSlice(str string, slice []string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}

// ParseList parses a comma-separated CLI value
func ParseList(input string) []string {
	if input == "" {
		return nil
	}

	var result []string
	for _, item := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
