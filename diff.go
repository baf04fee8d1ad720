package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"
)

// DiffConfig represents the inventory comparison settings
type DiffConfig struct {
	Format     string `yaml:"format"`      // "json" or "text"
	Detailed   bool   `yaml:"detailed"`    // include unchanged resources
	OutputFile string `yaml:"output_file"` // output file path
}

// DiffResult is the comparison between two inventories
type DiffResult struct {
	Summary   DiffSummary        `json:"summary"`
	Added     []InventoryRecord  `json:"added"`
	Removed   []InventoryRecord  `json:"removed"`
	Modified  []ModifiedResource `json:"modified"`
	Unchanged []InventoryRecord  `json:"unchanged,omitempty"`
	Timestamp string             `json:"timestamp"`
	OldFile   string             `json:"old_file"`
	NewFile   string             `json:"new_file"`
}

// DiffSummary provides statistical overview of the differences
type DiffSummary struct {
	TotalOld       int                  `json:"total_old"`
	TotalNew       int                  `json:"total_new"`
	Added          int                  `json:"added"`
	Removed        int                  `json:"removed"`
	Modified       int                  `json:"modified"`
	Unchanged      int                  `json:"unchanged"`
	ByResourceType map[string]DiffStats `json:"by_resource_type"`
}

// DiffStats holds statistics for a specific resource type
type DiffStats struct {
	Added     int `json:"added"`
	Removed   int `json:"removed"`
	Modified  int `json:"modified"`
	Unchanged int `json:"unchanged"`
}

// ModifiedResource is a record present in both inventories with differences
type ModifiedResource struct {
	Record  InventoryRecord `json:"resource"`
	Changes []FieldChange   `json:"changes"`
}

// FieldChange represents a specific field modification
type FieldChange struct {
	Field    string      `json:"field"`
	OldValue interface{} `json:"old_value"`
	NewValue interface{} `json:"new_value"`
}

// HasChanges reports whether anything was added, removed or modified
func (r *DiffResult) HasChanges() bool {
	return r.Summary.Added+r.Summary.Removed+r.Summary.Modified > 0
}

// CompareInventories loads two JSON inventories and compares them
func CompareInventories(oldFile, newFile string, config DiffConfig) (*DiffResult, error) {
	logger.Info("Comparing inventories: %s vs %s", oldFile, newFile)

	if err := validateDiffFiles(oldFile, newFile); err != nil {
		return nil, err
	}

	oldRecords, err := LoadInventoryFile(oldFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load old file %s: %w", oldFile, err)
	}
	newRecords, err := LoadInventoryFile(newFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load new file %s: %w", newFile, err)
	}

	logger.Verbose("Loaded %d records from old file, %d from new file", len(oldRecords), len(newRecords))

	result := DiffInventories(oldRecords, newRecords, config.Detailed)
	result.OldFile = oldFile
	result.NewFile = newFile

	logger.Info("Comparison complete: +%d, -%d, ~%d resources", result.Summary.Added, result.Summary.Removed, result.Summary.Modified)
	return result, nil
}

// LoadInventoryFile reads a JSON inventory written by the inventory writer
func LoadInventoryFile(filename string) ([]InventoryRecord, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var records []InventoryRecord
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return records, nil
}

// inventoryKey identifies a record across runs: the OCID, or compartment:type:name without one
func inventoryKey(record InventoryRecord) string {
	if record.OCID != "" {
		return record.OCID
	}
	return fmt.Sprintf("%s:%s:%s", record.CompartmentID, record.ResourceType, record.ResourceName)
}

func indexInventory(records []InventoryRecord) map[string]InventoryRecord {
	index := make(map[string]InventoryRecord, len(records))
	for _, record := range records {
		index[inventoryKey(record)] = record
	}
	return index
}

// DiffInventories compares two record sets in a single pass over each
func DiffInventories(oldRecords, newRecords []InventoryRecord, includeUnchanged bool) *DiffResult {
	oldIndex := indexInventory(oldRecords)
	newIndex := indexInventory(newRecords)

	result := &DiffResult{
		Added:     []InventoryRecord{},
		Removed:   []InventoryRecord{},
		Modified:  []ModifiedResource{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	stats := make(map[string]DiffStats)
	bump := func(resourceType string, f func(*DiffStats)) {
		s := stats[resourceType]
		f(&s)
		stats[resourceType] = s
	}

	var unchanged []InventoryRecord
	for key, oldRecord := range oldIndex {
		newRecord, ok := newIndex[key]
		if !ok {
			result.Removed = append(result.Removed, oldRecord)
			bump(oldRecord.ResourceType, func(s *DiffStats) { s.Removed++ })
			continue
		}
		if changes := CompareRecords(oldRecord, newRecord); len(changes) > 0 {
			result.Modified = append(result.Modified, ModifiedResource{Record: newRecord, Changes: changes})
			bump(newRecord.ResourceType, func(s *DiffStats) { s.Modified++ })
		} else {
			unchanged = append(unchanged, newRecord)
			bump(newRecord.ResourceType, func(s *DiffStats) { s.Unchanged++ })
		}
	}
	for key, newRecord := range newIndex {
		if _, ok := oldIndex[key]; !ok {
			result.Added = append(result.Added, newRecord)
			bump(newRecord.ResourceType, func(s *DiffStats) { s.Added++ })
		}
	}

	sortRecords(result.Added)
	sortRecords(result.Removed)
	sortRecords(unchanged)
	sort.Slice(result.Modified, func(i, j int) bool {
		return recordLess(result.Modified[i].Record, result.Modified[j].Record)
	})

	if includeUnchanged {
		result.Unchanged = unchanged
	}

	result.Summary = DiffSummary{
		TotalOld:       len(oldIndex),
		TotalNew:       len(newIndex),
		Added:          len(result.Added),
		Removed:        len(result.Removed),
		Modified:       len(result.Modified),
		Unchanged:      len(unchanged),
		ByResourceType: stats,
	}
	return result
}

func recordLess(a, b InventoryRecord) bool {
	if a.ResourceType != b.ResourceType {
		return a.ResourceType < b.ResourceType
	}
	if a.ResourceName != b.ResourceName {
		return a.ResourceName < b.ResourceName
	}
	return a.OCID < b.OCID
}

func sortRecords(records []InventoryRecord) {
	sort.Slice(records, func(i, j int) bool { return recordLess(records[i], records[j]) })
}

// CompareRecords returns the field changes between two versions of a record
func CompareRecords(old, new InventoryRecord) []FieldChange {
	var changes []FieldChange

	if old.ResourceName != new.ResourceName {
		changes = append(changes, FieldChange{Field: "ResourceName", OldValue: old.ResourceName, NewValue: new.ResourceName})
	}
	if old.CompartmentID != new.CompartmentID {
		changes = append(changes, FieldChange{Field: "CompartmentID", OldValue: old.CompartmentID, NewValue: new.CompartmentID})
	}
	if old.CompartmentName != new.CompartmentName {
		changes = append(changes, FieldChange{Field: "CompartmentName", OldValue: old.CompartmentName, NewValue: new.CompartmentName})
	}

	return append(changes, compareAdditionalInfo(old.AdditionalInfo, new.AdditionalInfo)...)
}

// compareAdditionalInfo compares two detail maps key by key, sorted by field name
func compareAdditionalInfo(oldInfo, newInfo map[string]interface{}) []FieldChange {
	keys := make(map[string]bool, len(oldInfo)+len(newInfo))
	for key := range oldInfo {
		keys[key] = true
	}
	for key := range newInfo {
		keys[key] = true
	}
	sorted := make([]string, 0, len(keys))
	for key := range keys {
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	var changes []FieldChange
	for _, key := range sorted {
		oldVal, oldExists := oldInfo[key]
		newVal, newExists := newInfo[key]
		if oldExists && newExists && reflect.DeepEqual(oldVal, newVal) {
			continue
		}
		change := FieldChange{Field: "AdditionalInfo." + key}
		if oldExists {
			change.OldValue = oldVal
		}
		if newExists {
			change.NewValue = newVal
		}
		changes = append(changes, change)
	}
	return changes
}

// OutputDiffResult writes the result to the configured file, or w
func OutputDiffResult(result *DiffResult, config DiffConfig, w io.Writer) error {
	if config.OutputFile != "" {
		file, err := os.Create(config.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file %s: %w", config.OutputFile, err)
		}
		defer file.Close()
		w = file
		logger.Info("Writing diff result to file: %s", config.OutputFile)
	}

	switch strings.ToLower(config.Format) {
	case "", "text":
		return OutputDiffText(result, w)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	default:
		return fmt.Errorf("unsupported diff format: %s", config.Format)
	}
}

// OutputDiffText writes a human readable report
func OutputDiffText(result *DiffResult, w io.Writer) error {
	var b strings.Builder

	b.WriteString("OCI Inventory Comparison Report\n")
	b.WriteString("===============================\n\n")
	fmt.Fprintf(&b, "Old: %s (%d resources)\n", result.OldFile, result.Summary.TotalOld)
	fmt.Fprintf(&b, "New: %s (%d resources)\n", result.NewFile, result.Summary.TotalNew)
	fmt.Fprintf(&b, "Generated: %s\n\n", result.Timestamp)

	b.WriteString("SUMMARY\n-------\n")
	fmt.Fprintf(&b, "  Added:     %d\n", result.Summary.Added)
	fmt.Fprintf(&b, "  Removed:   %d\n", result.Summary.Removed)
	fmt.Fprintf(&b, "  Modified:  %d\n", result.Summary.Modified)
	fmt.Fprintf(&b, "  Unchanged: %d\n\n", result.Summary.Unchanged)

	if len(result.Summary.ByResourceType) > 0 {
		b.WriteString("BY RESOURCE TYPE\n----------------\n")
		types := make([]string, 0, len(result.Summary.ByResourceType))
		for t := range result.Summary.ByResourceType {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			s := result.Summary.ByResourceType[t]
			fmt.Fprintf(&b, "%s: +%d, -%d, ~%d (%d total)\n", t, s.Added, s.Removed, s.Modified, s.Added+s.Modified+s.Unchanged)
		}
		b.WriteString("\n")
	}

	writeRecords := func(title, marker string, records []InventoryRecord) {
		if len(records) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d)\n", title, len(records))
		for _, r := range records {
			fmt.Fprintf(&b, "%s %s: %s (%s) in %s\n", marker, r.ResourceType, r.ResourceName, r.OCID, compartmentLabel(r))
		}
		b.WriteString("\n")
	}
	writeRecords("ADDED", "+", result.Added)
	writeRecords("REMOVED", "-", result.Removed)

	if len(result.Modified) > 0 {
		fmt.Fprintf(&b, "MODIFIED (%d)\n", len(result.Modified))
		for _, m := range result.Modified {
			r := m.Record
			fmt.Fprintf(&b, "~ %s: %s (%s) in %s\n", r.ResourceType, r.ResourceName, r.OCID, compartmentLabel(r))
			for _, change := range m.Changes {
				fmt.Fprintf(&b, "    %s: %s -> %s\n", strings.TrimPrefix(change.Field, "AdditionalInfo."), formatValue(change.OldValue), formatValue(change.NewValue))
			}
		}
		b.WriteString("\n")
	}

	writeRecords("UNCHANGED", "=", result.Unchanged)

	_, err := io.WriteString(w, b.String())
	return err
}

func compartmentLabel(r InventoryRecord) string {
	if r.CompartmentName != "" {
		return r.CompartmentName
	}
	return r.CompartmentID
}

// formatValue formats a value for display
func formatValue(value interface{}) string {
	if value == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%v", value)
}

// validateDiffFiles validates that both input files exist and differ
func validateDiffFiles(oldFile, newFile string) error {
	if _, err := os.Stat(oldFile); os.IsNotExist(err) {
		return fmt.Errorf("old file not found: %s", oldFile)
	}
	if _, err := os.Stat(newFile); os.IsNotExist(err) {
		return fmt.Errorf("new file not found: %s", newFile)
	}
	if oldFile == newFile {
		return fmt.Errorf("old and new files cannot be the same: %s", oldFile)
	}
	return nil
}
