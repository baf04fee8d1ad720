package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/identity"
)

// rootCompartmentName is the display name used for the tenancy itself
const rootCompartmentName = "root"

// EnumerateOptions controls which compartments the enumerator returns
type EnumerateOptions struct {
	IncludeRoot bool
	Recursive   bool
	ActiveOnly  bool
}

// EnumerateCompartments lists every compartment under the tenancy, following pagination.
// Each compartment appears exactly once, in the order the API returned it.
func EnumerateCompartments(ctx context.Context, lister CompartmentLister, tenancyID string, opts EnumerateOptions) ([]Compartment, error) {
	logger.Debug("Enumerating compartments for tenancy: %s", tenancyID)

	var compartments []Compartment
	seen := make(map[string]bool)

	if opts.IncludeRoot {
		compartments = append(compartments, Compartment{
			ID:             tenancyID,
			Name:           rootCompartmentName,
			LifecycleState: string(identity.CompartmentLifecycleStateActive),
		})
		seen[tenancyID] = true
	}

	request := identity.ListCompartmentsRequest{
		CompartmentId:          common.String(tenancyID),
		AccessLevel:            identity.ListCompartmentsAccessLevelAccessible,
		CompartmentIdInSubtree: common.Bool(opts.Recursive),
	}

	pageCount := 0
	for {
		pageCount++
		logger.Debug("Fetching compartments page %d", pageCount)

		response, err := lister.ListCompartments(ctx, request)
		if err != nil {
			return nil, &RemoteListError{Operation: "ListCompartments", CompartmentID: tenancyID, Err: err}
		}

		for _, item := range response.Items {
			if item.Id == nil || seen[*item.Id] {
				continue
			}
			if opts.ActiveOnly && item.LifecycleState != identity.CompartmentLifecycleStateActive {
				logger.Debug("Skipping compartment %s in state %s", *item.Id, item.LifecycleState)
				continue
			}
			seen[*item.Id] = true
			compartments = append(compartments, compartmentFromSDK(item))
		}

		if response.OpcNextPage == nil {
			break
		}
		request.Page = response.OpcNextPage
	}

	logger.Verbose("Found %d compartments in %d page(s)", len(compartments), pageCount)
	return compartments, nil
}

func compartmentFromSDK(item identity.Compartment) Compartment {
	c := Compartment{LifecycleState: string(item.LifecycleState)}
	if item.Id != nil {
		c.ID = *item.Id
	}
	if item.Name != nil {
		c.Name = *item.Name
	}
	if item.CompartmentId != nil {
		c.ParentID = *item.CompartmentId
	}
	return c
}

// CompartmentNames returns the identifier to display name mapping
func CompartmentNames(compartments []Compartment) map[string]string {
	names := make(map[string]string, len(compartments))
	for _, c := range compartments {
		names[c.ID] = c.Name
	}
	return names
}

// CompartmentDirectory resolves compartment names and hierarchical paths
type CompartmentDirectory struct {
	tenancyID   string
	compartment map[string]Compartment
}

// NewCompartmentDirectory indexes the enumerated compartments
func NewCompartmentDirectory(tenancyID string, compartments []Compartment) *CompartmentDirectory {
	d := &CompartmentDirectory{
		tenancyID:   tenancyID,
		compartment: make(map[string]Compartment, len(compartments)),
	}
	for _, c := range compartments {
		d.compartment[c.ID] = c
	}
	return d
}

// Name returns the display name of a compartment, or a short OCID when unknown
func (d *CompartmentDirectory) Name(id string) string {
	if id == "" || id == d.tenancyID {
		return rootCompartmentName
	}

	if c, ok := d.compartment[id]; ok && c.Name != "" {
		return c.Name
	}
	return formatShortOCID(id)
}

// Path returns the slash separated names from the top-level compartment down to id.
// The tenancy root is omitted unless id is the root itself.
func (d *CompartmentDirectory) Path(id string) string {
	if id == "" || id == d.tenancyID {
		return rootCompartmentName
	}

	var parts []string
	visited := make(map[string]bool)
	for cur := id; cur != "" && cur != d.tenancyID && !visited[cur]; {
		visited[cur] = true
		c, ok := d.compartment[cur]
		if !ok {
			parts = append(parts, formatShortOCID(cur))
			break
		}
		parts = append(parts, c.Name)
		cur = c.ParentID
	}

	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// formatShortOCID creates a short, readable version of an OCID for fallback display
func formatShortOCID(ocid string) string {
	if len(ocid) <= 8 {
		return ocid
	}
	return fmt.Sprintf("ocid-...%s", ocid[len(ocid)-8:])
}
