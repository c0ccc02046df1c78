package lifecycle

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/RubachokBoss/thesis-service/internal/models"
)

var languageRegex = regexp.MustCompile(`^[a-z]{2}$`)

// Rules bounds the free-text inputs of applications and conclusion requests.
type Rules struct {
	MaxTopicLength           int
	MaxDescriptionLength     int
	MaxTitleLength           int
	MaxAbstractLength        int
	MaxOtherMotivationLength int
	PrimaryLanguage          string
}

func DefaultRules() Rules {
	return Rules{
		MaxTopicLength:           1500,
		MaxDescriptionLength:     5000,
		MaxTitleLength:           1000,
		MaxAbstractLength:        3550,
		MaxOtherMotivationLength: 500,
		PrimaryLanguage:          "it",
	}
}

func tooLong(s string, max int) bool {
	return max > 0 && utf8.RuneCountInString(s) > max
}

func ValidateApplicationRequest(req *models.CreateApplicationRequest, rules Rules) error {
	ve := models.NewValidationError()

	if strings.TrimSpace(req.StudentID) == "" {
		ve.Add("student_id", "is required")
	}
	if strings.TrimSpace(req.SupervisorID) == "" {
		ve.Add("supervisor_id", "is required")
	}

	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		ve.Add("topic", "is required")
	} else if tooLong(topic, rules.MaxTopicLength) {
		ve.Add("topic", fmt.Sprintf("must be at most %d characters", rules.MaxTopicLength))
	}

	if req.Description != nil && tooLong(*req.Description, rules.MaxDescriptionLength) {
		ve.Add("description", fmt.Sprintf("must be at most %d characters", rules.MaxDescriptionLength))
	}

	validateSupervisorSet(req.SupervisorID, req.CoSupervisorIDs, ve)

	return ve.OrNil()
}

func ValidateSupervisors(req *models.UpdateSupervisorsRequest) error {
	ve := models.NewValidationError()
	if strings.TrimSpace(req.SupervisorID) == "" {
		ve.Add("supervisor_id", "is required")
	}
	validateSupervisorSet(req.SupervisorID, req.CoSupervisorIDs, ve)
	return ve.OrNil()
}

func validateSupervisorSet(supervisorID string, coSupervisorIDs []string, ve *models.ValidationError) {
	seen := make(map[string]struct{}, len(coSupervisorIDs))
	for _, id := range coSupervisorIDs {
		if strings.TrimSpace(id) == "" {
			ve.Add("co_supervisor_ids", "must not contain empty ids")
			return
		}
		if id == supervisorID {
			ve.Add("co_supervisor_ids", "must not contain the supervisor")
			return
		}
		if _, dup := seen[id]; dup {
			ve.Add("co_supervisor_ids", "must not contain duplicates")
			return
		}
		seen[id] = struct{}{}
	}
}

// ValidateConclusion checks a full conclusion request. Every invalid field
// is reported, not just the first one.
func ValidateConclusion(d *models.ConclusionDetails, rules Rules) error {
	ve := models.NewValidationError()

	if strings.TrimSpace(d.Title) == "" {
		ve.Add("title", "is required")
	}
	if strings.TrimSpace(d.Abstract) == "" {
		ve.Add("abstract", "is required")
	}
	if strings.TrimSpace(d.Language) == "" {
		ve.Add("language", "is required")
	}
	validateTexts(d.Title, d.TitleEn, d.Abstract, d.AbstractEn, d.Language, rules, ve)

	if !d.SupervisorConfirmation {
		ve.Add("supervisor_confirmation", "must be confirmed")
	}

	validateAuthorization(d, rules, ve)

	if d.Files.ThesisFile == nil || strings.TrimSpace(*d.Files.ThesisFile) == "" {
		ve.Add("files.thesis_file", "is required")
	}
	if SummaryRequired(d.Language, rules) && (d.Files.SummaryFile == nil || strings.TrimSpace(*d.Files.SummaryFile) == "") {
		ve.Add("files.summary_file", "is required when the thesis is not written in the primary language")
	}

	return ve.OrNil()
}

// ValidateConclusionDraft applies the conclusion rules to the fields present in a draft.
func ValidateConclusionDraft(d *models.ConclusionDraft, rules Rules) error {
	ve := models.NewValidationError()

	var title, abstract, language string
	if d.Title != nil {
		title = *d.Title
	}
	if d.Abstract != nil {
		abstract = *d.Abstract
	}
	if d.Language != nil {
		language = *d.Language
		if strings.TrimSpace(language) == "" {
			ve.Add("language", "must not be empty")
		}
	}
	validateTexts(title, d.TitleEn, abstract, d.AbstractEn, language, rules, ve)

	return ve.OrNil()
}

func validateTexts(title string, titleEn *string, abstract string, abstractEn *string, language string, rules Rules, ve *models.ValidationError) {
	if tooLong(title, rules.MaxTitleLength) {
		ve.Add("title", fmt.Sprintf("must be at most %d characters", rules.MaxTitleLength))
	}
	if titleEn != nil && tooLong(*titleEn, rules.MaxTitleLength) {
		ve.Add("title_en", fmt.Sprintf("must be at most %d characters", rules.MaxTitleLength))
	}
	if tooLong(abstract, rules.MaxAbstractLength) {
		ve.Add("abstract", fmt.Sprintf("must be at most %d characters", rules.MaxAbstractLength))
	}
	if abstractEn != nil && tooLong(*abstractEn, rules.MaxAbstractLength) {
		ve.Add("abstract_en", fmt.Sprintf("must be at most %d characters", rules.MaxAbstractLength))
	}
	if language != "" && !languageRegex.MatchString(language) {
		ve.Add("language", "must be a two-letter lowercase language code")
	}
}

func validateAuthorization(d *models.ConclusionDetails, rules Rules, ve *models.ValidationError) {
	switch d.Authorization {
	case models.AuthorizationAuthorize:
		if d.LicenseID == nil || *d.LicenseID <= 0 {
			ve.Add("license_id", "is required when authorizing publication")
		}
		if d.Embargo != nil {
			ve.Add("embargo", "must be empty when authorizing publication")
		}
	case models.AuthorizationDeny:
		if d.LicenseID != nil {
			ve.Add("license_id", "must be empty when denying publication")
		}
		if d.Embargo == nil {
			ve.Add("embargo", "is required when denying publication")
			return
		}
		ValidateEmbargo(d.Embargo, rules, ve)
	default:
		ve.Add("authorization", "must be authorize or deny")
	}
}

// ValidateEmbargo checks duration, motivations and the "other" free text.
func ValidateEmbargo(e *models.Embargo, rules Rules, ve *models.ValidationError) {
	if !e.Duration.IsValid() {
		ve.Add("embargo.duration", "must be one of 12_months, 18_months, 36_months, after_explicit_consent")
	}
	if len(e.MotivationIDs) == 0 {
		ve.Add("embargo.motivation_ids", "at least one motivation is required")
	}

	seen := make(map[int]struct{}, len(e.MotivationIDs))
	hasOther := false
	for _, id := range e.MotivationIDs {
		if id < models.MinEmbargoMotivationID || id > models.MaxEmbargoMotivationID {
			ve.Add("embargo.motivation_ids", fmt.Sprintf("unknown motivation %d", id))
			continue
		}
		if _, dup := seen[id]; dup {
			ve.Add("embargo.motivation_ids", fmt.Sprintf("duplicate motivation %d", id))
			continue
		}
		seen[id] = struct{}{}
		if id == models.OtherMotivationID {
			hasOther = true
		}
	}

	other := ""
	if e.OtherMotivation != nil {
		other = strings.TrimSpace(*e.OtherMotivation)
	}
	switch {
	case hasOther && other == "":
		ve.Add("embargo.other_motivation", "is required when the other motivation is selected")
	case !hasOther && other != "":
		ve.Add("embargo.other_motivation", "is only allowed with the other motivation")
	case tooLong(other, rules.MaxOtherMotivationLength):
		ve.Add("embargo.other_motivation", fmt.Sprintf("must be at most %d characters", rules.MaxOtherMotivationLength))
	}
}

// SummaryRequired reports whether the committee summary must accompany a
// thesis written in language.
func SummaryRequired(language string, rules Rules) bool {
	return rules.PrimaryLanguage != "" && language != "" && language != rules.PrimaryLanguage
}

var documentExtensions = map[models.DocumentKind][]string{
	models.DocumentKindThesis:        {".pdf"},
	models.DocumentKindSummary:       {".pdf"},
	models.DocumentKindResume:        {".pdf"},
	models.DocumentKindAdditionalZip: {".zip"},
	models.DocumentKindFinalThesis:   {".pdf"},
}

// ValidateDocument checks that an upload of kind has an accepted file type.
func ValidateDocument(kind models.DocumentKind, fileName string) error {
	ve := models.NewValidationError()
	field := "files." + string(kind)

	allowed, ok := documentExtensions[kind]
	if !ok {
		ve.Add(field, "unknown document kind")
		return ve
	}

	ext := strings.ToLower(path.Ext(fileName))
	for _, a := range allowed {
		if ext == a {
			return nil
		}
	}

	ve.Add(field, fmt.Sprintf("must be a %s file", strings.Join(allowed, " or ")))
	return ve
}
