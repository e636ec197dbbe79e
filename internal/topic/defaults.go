package topic

// Screening and certification topics understood by the default solver program.
const (
	Autism        ID = "autism"
	Dementia      ID = "dementia"
	Arthritis     ID = "arthritis"
	COPD          ID = "copd"
	BloodPressure ID = "blood_pressure"
	Hypoglycemia  ID = "hypoglycemia"
	Pneumonia     ID = "pneumonia"
	Certification ID = "certification"
)

// CertificationFacts is the number of airworthiness predicates that must be
// confirmed before a certification query is sent.
const CertificationFacts = 17

// DefaultTopics returns the built-in topic table. Severity windows differ per
// topic because the solver programs print their bindings differently.
func DefaultTopics() []Topic {
	noModels := []string{NoModels}
	return []Topic{
		{
			ID:                Autism,
			Label:             "AUTISM",
			Marker:            "has_autism",
			NegativeSentinels: noModels,
			NegativeLiterals:  []string{"no."},
			Severity:          NumericWindow(1, -4),
			NegativeLine:      "{SCREENING RESULTS: NO AUTISM}",
			PositiveLine:      "{SCREENING RESULTS: POSSIBLE AUTISM. SEVERITY LEVEL: %s}",
		},
		{
			ID:                Dementia,
			Label:             "DEMENTIA",
			Marker:            "has_dementia",
			NegativeSentinels: noModels,
			Severity:          Window(6),
			NegativeLine:      "{SCREENING RESULTS: NO DEMENTIA}",
			PositiveLine:      "{SCREENING RESULTS: POSSIBLE DEMENTIA. SEVERITY LEVEL: %s}",
		},
		{
			ID:                Arthritis,
			Label:             "ARTHRITIS",
			Marker:            "has_ra",
			NegativeSentinels: noModels,
			Severity:          ToEnd(1),
			NegativeLine:      "{SCREENING RESULTS: NO ARTHRITIS}",
			PositiveLine:      "{SCREENING RESULTS: POSSIBLE ARTHRITIS. SEVERITY LEVEL: %s}",
		},
		{
			ID:                COPD,
			Label:             "COPD",
			Marker:            "has_copd",
			NegativeSentinels: noModels,
			Severity:          NoSeverity(),
			NegativeLine:      "{SCREENING RESULTS: NO COPD}",
			PositiveLine:      "{SCREENING RESULTS: COPD MAY BE POSSIBLE. SHOULD BE MONITORED.}",
		},
		{
			ID:                BloodPressure,
			Label:             "HYPERTENSION OR HYPOTENSION",
			Marker:            "has_hyper_hypo_tension",
			NegativeSentinels: noModels,
			Severity:          ToEnd(2),
			NegativeLine:      "{SCREENING RESULTS: NO HYPERTENSION OR HYPOTENSION}",
			PositiveLine:      "{SCREENING RESULTS: USER MAY HAVE %s. SHOULD BE MONITORED.}",
		},
		{
			ID:                Hypoglycemia,
			Label:             "HYPOGLYCEMIA",
			Marker:            "has_hypoglycemia",
			NegativeSentinels: noModels,
			Severity:          ToEnd(2),
			NegativeLine:      "{SCREENING RESULTS: NO HYPOGLYCEMIA}",
			PositiveLine:      "{SCREENING RESULTS: POSSIBLE HYPOGLYCEMIA. SEVERITY LEVEL: %s}",
		},
		{
			ID:                Pneumonia,
			Label:             "PNEUMONIA",
			Marker:            "has_pneumonia",
			NegativeSentinels: noModels,
			Severity:          NoSeverity(),
			NegativeLine:      "{SCREENING RESULTS: NO PNEUMONIA}",
			PositiveLine:      "{SCREENING RESULTS: PNEUMONIA MAY BE POSSIBLE. SHOULD BE MONITORED.}",
		},
		{
			ID:                Certification,
			Label:             "CERTIFICATION",
			Marker:            "certification_approved",
			NegativeSentinels: noModels,
			Severity:          NoSeverity(),
			RequiredFacts:     CertificationFacts,
			Start:             StartAtBody,
			NegativeLine:      "{CERTIFICATION RESULTS: NOT CERTIFIED. ONE OR MORE REQUIREMENTS NOT MET.}",
			PositiveLine:      "{CERTIFICATION RESULTS: AIRCRAFT CERTIFIED.}",
		},
	}
}

// Default returns a registry holding DefaultTopics.
func Default() *Registry {
	return MustNewRegistry(DefaultPredicatePrefix, DefaultValueMarker, DefaultTopics()...)
}
