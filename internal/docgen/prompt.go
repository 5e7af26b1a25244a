package docgen

import (
	"fmt"
	"strings"

	"github.com/brunovale/escriba/internal/history"
)

// ReviewDisclaimer is appended to the document text when the caller requests
// clinician review. It never changes the structured payload.
const ReviewDisclaimer = "AVISO: Documento gerado automaticamente a partir da consulta. " +
	"Um profissional de saúde deve revisar e confirmar o conteúdo antes do uso."

var extractorPrompts = map[string]string{
	AgentPatientInfo: "Extract patient identification details (name, age, sex, relevant personal data) mentioned in the consultation transcript.",
	AgentSymptom:     "Extract every symptom the patient reports, with onset, duration and intensity when stated.",
	AgentExamFinding: "Extract physical examination findings and vital signs mentioned by the clinician.",
	AgentDiagnosis:   "Extract diagnoses, diagnostic hypotheses and differential diagnoses discussed.",
	AgentTreatment:   "Extract treatments, medications (with dose and frequency), procedures and recommendations.",
	AgentHistory:     "Extract prior medical history, chronic conditions, allergies and current medications mentioned.",
}

func extractorPrompt(agent string) string {
	task, ok := extractorPrompts[agent]
	if !ok {
		task = fmt.Sprintf("Extract %s information from the consultation transcript.", agent)
	}

	var b strings.Builder
	b.WriteString("You are a clinical information extraction agent.\n\n")
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Use only information present in the transcript; never invent data\n")
	b.WriteString("- Answer in the same language as the transcript\n")
	b.WriteString("- Output a concise bullet list; write 'nenhum dado encontrado' if nothing applies\n")
	return b.String()
}

func extractionPlaceholder(agent string) string {
	return fmt.Sprintf("[%s: extração indisponível nesta execução]", agent)
}

var orchestratorPrompts = map[DocumentType]string{
	ClinicalNote: "Compose a complete clinical note (anamnese, exame físico, hipótese diagnóstica, conduta) " +
		"from the consultation transcript and the extracted findings.",
	Prescription: "Compose a prescription listing each medication with dose, route, frequency and duration, " +
		"based strictly on the treatments discussed in the consultation.",
	Summary: "Compose a short summary of the consultation: main complaint, findings, diagnosis and plan.",
	StructuredData: "Produce a single JSON object with the keys paciente, sintomas, exame, diagnosticos, " +
		"tratamentos and historico, populated from the transcript and extracted findings. " +
		"Output only the JSON object, optionally inside a ```json fenced block.",
	Evolution: "Compose an evolution note comparing the patient's current state with the reported course.",
	MedicalReport: "Compose a formal medical report (laudo) suitable for third parties, covering findings, " +
		"diagnosis and recommendations.",
	PatientFriendly: "Rewrite the provided clinical text in plain, patient-friendly language, " +
		"avoiding jargon while preserving all medical instructions.",
	EnhancedAnalysis: "Compose an in-depth clinical analysis: correlate symptoms, findings and history, " +
		"discuss differential diagnoses and suggest follow-up.",
}

func orchestratorPrompt(docType DocumentType) string {
	task, ok := orchestratorPrompts[docType]
	if !ok {
		task = "Compose a clinical document from the consultation transcript and the extracted findings."
	}

	var b strings.Builder
	b.WriteString("You are a clinical documentation agent composing one finished document.\n\n")
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- Ground every statement in the provided material; never invent clinical data\n")
	b.WriteString("- Write in the same language as the transcript\n")
	b.WriteString("- Output only the document, no commentary\n")
	return b.String()
}

// buildExtractionContext is the shared Stage-1 input: transcript plus the
// optional prior-encounter block.
func buildExtractionContext(transcript string, records []history.Record) string {
	var b strings.Builder
	b.WriteString("Consultation transcript:\n")
	b.WriteString(transcript)
	if block := historyBlock(records); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}
	return b.String()
}

// buildCompositionPrompt is the Stage-2 input: labelled extractor outputs,
// the raw transcript and the history block.
func buildCompositionPrompt(req Request, extractions []ExtractionResult, records []history.Record) string {
	var b strings.Builder

	if len(extractions) > 0 {
		b.WriteString("Extracted findings:\n")
		for _, ex := range extractions {
			b.WriteString(fmt.Sprintf("## %s\n%s\n\n", ex.Agent, ex.Content))
		}
	}

	b.WriteString("Consultation transcript:\n")
	b.WriteString(req.Transcript)

	if block := historyBlock(records); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}

	if req.AdditionalInstructions != "" {
		b.WriteString("\n\nAdditional instructions:\n")
		b.WriteString(req.AdditionalInstructions)
	}

	return b.String()
}

func historyBlock(records []history.Record) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Prior encounters (newest first):\n")
	for _, r := range records {
		b.WriteString(fmt.Sprintf("- %s: %s", r.CreatedAt.Format("2006-01-02"), r.Summary))
		if r.Prescription != "" {
			b.WriteString(fmt.Sprintf(" | prescrição: %s", r.Prescription))
		}
		b.WriteString("\n")
	}
	return b.String()
}
