// internal/models/assessment.go
package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ReviewTracking is embedded in every reviewable owner.
type ReviewTracking struct {
	PlanningApplicationID uuid.UUID    `json:"planning_application_id" gorm:"type:uuid;not null;index"`
	ReviewState           ReviewStatus `json:"review_state" gorm:"type:varchar(20);not null;default:'not_started'"`
}

func (t *ReviewTracking) ApplicationID() uuid.UUID        { return t.PlanningApplicationID }
func (t *ReviewTracking) CurrentStatus() ReviewStatus     { return t.ReviewState }
func (t *ReviewTracking) SetCurrentStatus(s ReviewStatus) { t.ReviewState = s }

type ConsiderationSet struct {
	BaseModel
	ReviewTracking
	Summary string `json:"summary" gorm:"type:text"`
	Advice  string `json:"advice" gorm:"type:text"`
}

func (c *ConsiderationSet) ReviewOwnerType() string { return "consideration_set" }
func (c *ConsiderationSet) OwnerID() uuid.UUID      { return c.ID }

func (c *ConsiderationSet) MissingAssessment() []string {
	return blank(map[string]string{"summary": c.Summary})
}

func (c *ConsiderationSet) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(c, fields, "summary", "advice")
}

func (c *ConsiderationSet) Content() map[string]interface{} {
	return map[string]interface{}{"summary": c.Summary, "advice": c.Advice}
}

type PolicyArea struct {
	BaseModel
	ReviewTracking
	Area       string `json:"area" gorm:"size:100;not null"`
	Assessment string `json:"assessment" gorm:"type:text"`
	Complies   *bool  `json:"complies"`
}

func (p *PolicyArea) ReviewOwnerType() string { return "policy_area" }
func (p *PolicyArea) OwnerID() uuid.UUID      { return p.ID }

func (p *PolicyArea) MissingAssessment() []string {
	missing := blank(map[string]string{"assessment": p.Assessment})
	if p.Complies == nil {
		missing = append(missing, "complies")
	}
	return missing
}

func (p *PolicyArea) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(p, fields, "assessment", "complies")
}

func (p *PolicyArea) Content() map[string]interface{} {
	return map[string]interface{}{"area": p.Area, "assessment": p.Assessment, "complies": p.Complies}
}

type PermittedDevelopmentRight struct {
	BaseModel
	ReviewTracking
	Removed       *bool  `json:"removed"`
	RemovedReason string `json:"removed_reason" gorm:"type:text"`
}

func (p *PermittedDevelopmentRight) ReviewOwnerType() string { return "permitted_development_right" }
func (p *PermittedDevelopmentRight) OwnerID() uuid.UUID      { return p.ID }

func (p *PermittedDevelopmentRight) MissingAssessment() []string {
	if p.Removed == nil {
		return []string{"removed"}
	}
	if *p.Removed {
		return blank(map[string]string{"removed_reason": p.RemovedReason})
	}
	return nil
}

func (p *PermittedDevelopmentRight) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(p, fields, "removed", "removed_reason")
}

func (p *PermittedDevelopmentRight) Content() map[string]interface{} {
	return map[string]interface{}{"removed": p.Removed, "removed_reason": p.RemovedReason}
}

type HeadsOfTerm struct {
	BaseModel
	ReviewTracking
	Summary string            `json:"summary" gorm:"type:text"`
	Terms   []HeadsOfTermTerm `json:"terms,omitempty" gorm:"foreignKey:HeadsOfTermID"`
}

func (h *HeadsOfTerm) ReviewOwnerType() string { return "heads_of_term" }
func (h *HeadsOfTerm) OwnerID() uuid.UUID      { return h.ID }

func (h *HeadsOfTerm) MissingAssessment() []string {
	missing := blank(map[string]string{"summary": h.Summary})
	if len(h.Terms) == 0 {
		missing = append(missing, "terms")
	}
	return missing
}

func (h *HeadsOfTerm) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(h, fields, "summary")
}

func (h *HeadsOfTerm) Content() map[string]interface{} {
	return map[string]interface{}{"summary": h.Summary}
}

type LocalPolicy struct {
	BaseModel
	ReviewTracking
	Policies   StringList `json:"policies"`
	Assessment string     `json:"assessment" gorm:"type:text"`
	Conclusion string     `json:"conclusion" gorm:"type:text"`
}

func (l *LocalPolicy) ReviewOwnerType() string { return "local_policy" }
func (l *LocalPolicy) OwnerID() uuid.UUID      { return l.ID }

func (l *LocalPolicy) MissingAssessment() []string {
	return blank(map[string]string{"assessment": l.Assessment, "conclusion": l.Conclusion})
}

func (l *LocalPolicy) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(l, fields, "policies", "assessment", "conclusion")
}

func (l *LocalPolicy) Content() map[string]interface{} {
	return map[string]interface{}{"policies": []string(l.Policies), "assessment": l.Assessment, "conclusion": l.Conclusion}
}

type OwnershipCertificate struct {
	BaseModel
	ReviewTracking
	CertificateType string `json:"certificate_type" gorm:"size:1"`
	LandOwners      JSONB  `json:"land_owners,omitempty" gorm:"type:jsonb"`
}

func (o *OwnershipCertificate) ReviewOwnerType() string { return "ownership_certificate" }
func (o *OwnershipCertificate) OwnerID() uuid.UUID      { return o.ID }

func (o *OwnershipCertificate) MissingAssessment() []string {
	return blank(map[string]string{"certificate_type": o.CertificateType})
}

func (o *OwnershipCertificate) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(o, fields, "certificate_type", "land_owners")
}

func (o *OwnershipCertificate) Content() map[string]interface{} {
	return map[string]interface{}{"certificate_type": o.CertificateType, "land_owners": o.LandOwners}
}

type ImmunityDetail struct {
	BaseModel
	ReviewTracking
	EvidenceSummary string `json:"evidence_summary" gorm:"type:text"`
	Decision        string `json:"decision" gorm:"size:10"`
	DecisionReason  string `json:"decision_reason" gorm:"type:text"`
}

func (i *ImmunityDetail) ReviewOwnerType() string { return "immunity_detail" }
func (i *ImmunityDetail) OwnerID() uuid.UUID      { return i.ID }

func (i *ImmunityDetail) MissingAssessment() []string {
	return blank(map[string]string{"decision": i.Decision, "decision_reason": i.DecisionReason})
}

func (i *ImmunityDetail) ApplyEditedContent(fields map[string]interface{}) error {
	return applyFields(i, fields, "evidence_summary", "decision", "decision_reason")
}

func (i *ImmunityDetail) Content() map[string]interface{} {
	return map[string]interface{}{
		"evidence_summary": i.EvidenceSummary,
		"decision":         i.Decision,
		"decision_reason":  i.DecisionReason,
	}
}

// blank returns the sorted names of empty fields.
func blank(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// applyFields decodes the allowed subset of fields onto target through its json tags.
func applyFields(target interface{}, fields map[string]interface{}, allowed ...string) error {
	permitted := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		permitted[name] = true
	}
	for name := range fields {
		if !permitted[name] {
			return fmt.Errorf("field %s is not editable", name)
		}
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}
