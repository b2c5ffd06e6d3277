package sap

import (
	"fmt"
	"strings"

	"cpi-proxy/internal/models"
)

// Field aliases, highest priority first. The tenant API spells the same
// attribute differently across endpoint versions, so every output field is
// looked up under each candidate spelling in order.
var (
	parameterKeyAliases   = []string{"ParameterKey", "Key", "Name"}
	parameterValueAliases = []string{"ParameterValue", "Value", "DefaultValue"}
	dataTypeAliases       = []string{"DataType", "Type"}
	descriptionAliases    = []string{"Description", "Desc"}
	mandatoryAliases      = []string{"Mandatory", "Required"}

	idAliases      = []string{"Id", "ID", "id"}
	nameAliases    = []string{"Name", "name"}
	versionAliases = []string{"Version", "version"}
)

// stringAt returns the first non-empty string found under the alias list,
// trimmed. Non-string scalars are rendered with fmt to survive endpoints that
// return numbers where strings are expected.
func stringAt(record map[string]interface{}, aliases ...string) string {
	for _, alias := range aliases {
		value, ok := record[alias]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if trimmed := strings.TrimSpace(v); trimmed != "" {
				return trimmed
			}
		case float64:
			return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
		case bool:
			return fmt.Sprintf("%t", v)
		}
	}
	return ""
}

// boolAt returns the coerced boolean under the alias list, false if absent
func boolAt(record map[string]interface{}, aliases ...string) bool {
	for _, alias := range aliases {
		if value, ok := record[alias]; ok && value != nil {
			return coerceBool(value)
		}
	}
	return false
}

// coerceBool interprets the bool, numeric, and string truthiness forms the
// tenant emits: true, 1, "true", "1", "yes", "y" are true; everything else
// (false, 0, "", "false", "no") is false.
func coerceBool(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true
		}
		return false
	default:
		return false
	}
}

// mapConfigurationParameter maps one raw record to a ConfigurationParameter.
// Records without a usable parameter key are dropped (ok=false), not failed.
func mapConfigurationParameter(record map[string]interface{}) (models.ConfigurationParameter, bool) {
	key := stringAt(record, parameterKeyAliases...)
	if key == "" {
		return models.ConfigurationParameter{}, false
	}

	return models.ConfigurationParameter{
		Key:         key,
		Value:       stringAt(record, parameterValueAliases...),
		DataType:    stringAt(record, dataTypeAliases...),
		Description: stringAt(record, descriptionAliases...),
		Mandatory:   boolAt(record, mandatoryAliases...),
	}, true
}

// mapConfigurationParameters maps a record sequence, dropping unusable records
func mapConfigurationParameters(records []map[string]interface{}) []models.ConfigurationParameter {
	params := make([]models.ConfigurationParameter, 0, len(records))
	for _, record := range records {
		if param, ok := mapConfigurationParameter(record); ok {
			params = append(params, param)
		}
	}
	return params
}

// mapIntegrationPackage maps one raw record to an IntegrationPackage.
// Records without an id are dropped.
func mapIntegrationPackage(record map[string]interface{}) (models.IntegrationPackage, bool) {
	id := stringAt(record, idAliases...)
	if id == "" {
		return models.IntegrationPackage{}, false
	}

	return models.IntegrationPackage{
		ID:           id,
		Name:         stringAt(record, nameAliases...),
		Description:  stringAt(record, descriptionAliases...),
		Version:      stringAt(record, versionAliases...),
		ModifiedDate: stringAt(record, "ModifiedDate"),
		ModifiedBy:   stringAt(record, "ModifiedBy"),
		CreatedDate:  stringAt(record, "CreatedDate"),
		CreatedBy:    stringAt(record, "CreatedBy"),
	}, true
}

// mapIntegrationFlow maps one raw record to an IntegrationFlow.
// Records without an id are dropped.
func mapIntegrationFlow(record map[string]interface{}) (models.IntegrationFlow, bool) {
	id := stringAt(record, idAliases...)
	if id == "" {
		return models.IntegrationFlow{}, false
	}

	return models.IntegrationFlow{
		ID:           id,
		Name:         stringAt(record, nameAliases...),
		PackageID:    stringAt(record, "PackageId", "PackageID"),
		Description:  stringAt(record, descriptionAliases...),
		Version:      stringAt(record, versionAliases...),
		ModifiedDate: stringAt(record, "ModifiedDate"),
		ModifiedBy:   stringAt(record, "ModifiedBy"),
		Status:       stringAt(record, "Status"),
	}, true
}
