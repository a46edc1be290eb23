package models

import "fmt"

// Draft field keys. They double as the JSON names of the assessment payload.
const (
	FieldName          = "name"
	FieldAge           = "age"
	FieldGender        = "gender"
	FieldEthnicity     = "ethnicity"
	FieldCountry       = "country"
	FieldJaundice      = "jaundice"
	FieldFamilyHistory = "family_history"
	FieldRespondent    = "respondent"
)

var DemographicFields = []string{
	FieldName,
	FieldAge,
	FieldGender,
	FieldEthnicity,
	FieldCountry,
	FieldJaundice,
	FieldFamilyHistory,
	FieldRespondent,
}

const BehavioralItemCount = 10

// BehavioralField returns the key of AQ-10 item i (1-based).
func BehavioralField(i int) string {
	return fmt.Sprintf("a%d_score", i)
}

func BehavioralFields() []string {
	keys := make([]string, 0, BehavioralItemCount)
	for i := 1; i <= BehavioralItemCount; i++ {
		keys = append(keys, BehavioralField(i))
	}
	return keys
}

func IsKnownField(key string) bool {
	for _, k := range DemographicFields {
		if k == key {
			return true
		}
	}
	for _, k := range BehavioralFields() {
		if k == key {
			return true
		}
	}
	return false
}
