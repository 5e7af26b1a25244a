package docgen

// Extractor agent names. Each pulls one category of clinical information out
// of the transcript.
const (
	AgentPatientInfo = "patient-info"
	AgentSymptom     = "symptom"
	AgentExamFinding = "exam-finding"
	AgentDiagnosis   = "diagnosis"
	AgentTreatment   = "treatment"
	AgentHistory     = "history"
)

var allExtractors = []string{
	AgentPatientInfo, AgentSymptom, AgentExamFinding, AgentDiagnosis, AgentTreatment,
}

// rosters maps each document type to its fixed set of required extractors.
// patient_friendly has no roster: it transforms already-generated clinical
// text and skips extraction entirely.
var rosters = map[DocumentType][]string{
	ClinicalNote:     allExtractors,
	Prescription:     {AgentPatientInfo, AgentDiagnosis, AgentTreatment},
	Summary:          {AgentSymptom, AgentDiagnosis, AgentTreatment},
	StructuredData:   append(append([]string{}, allExtractors...), AgentHistory),
	Evolution:        {AgentSymptom, AgentExamFinding, AgentTreatment},
	MedicalReport:    allExtractors,
	EnhancedAnalysis: append(append([]string{}, allExtractors...), AgentHistory),
	PatientFriendly:  {},
}

func rosterFor(docType DocumentType) []string {
	return rosters[docType]
}

// KnownType reports whether mode names a supported document type.
func KnownType(mode string) bool {
	_, ok := rosters[DocumentType(mode)]
	return ok
}
