package services

import (
	"errors"
	"fmt"
	"time"

	"grant-scribe/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// createVersionRetries begrenzt die Wiederholungen, wenn zwei gleichzeitige
// Speichervorgänge dieselbe Versionsnummer ziehen.
const createVersionRetries = 3

// SectionService verwaltet die versionierten Sektionen eines Antrags.
type SectionService struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// NewSectionService erstellt einen neuen SectionService.
func NewSectionService(db *gorm.DB, logger *zap.Logger) *SectionService {
	return &SectionService{DB: db, Logger: logger}
}

// CreateVersionInput sind die Eingaben für einen neuen Versions-Datensatz.
type CreateVersionInput struct {
	ApplicationID string
	SectionName   string
	Content       string
	PromptUsed    string
	CreatedBy     string
	Metadata      models.SectionMetadata
}

// CreateVersion legt die nächste Version einer Sektion an und macht sie zur
// aktuellen. Die Versionsnummer ist max+1 innerhalb einer Transaktion; der
// Unique-Index auf (application_id, section_name, version_number) fängt
// gleichzeitige Schreiber ab, die Einfügung wird dann wiederholt.
func (s *SectionService) CreateVersion(input CreateVersionInput) (*models.SectionVersion, error) {
	if input.ApplicationID == "" || input.SectionName == "" {
		return nil, &ValidationError{Msg: "application_id and section_name are required"}
	}

	var version *models.SectionVersion
	var err error
	for attempt := 1; attempt <= createVersionRetries; attempt++ {
		version, err = s.tryCreateVersion(input)
		if err == nil {
			return version, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		s.Logger.Warn("Versionsnummer bereits vergeben, wiederhole Einfügung",
			zap.String("application_id", input.ApplicationID),
			zap.String("section", input.SectionName),
			zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("create version for %s/%s: %w", input.ApplicationID, input.SectionName, err)
}

func (s *SectionService) tryCreateVersion(input CreateVersionInput) (*models.SectionVersion, error) {
	version := &models.SectionVersion{
		ApplicationID:    input.ApplicationID,
		SectionName:      input.SectionName,
		Content:          input.Content,
		IsCurrentVersion: true,
		Status:           models.StatusDraft,
		PromptUsed:       input.PromptUsed,
		CreatedBy:        input.CreatedBy,
	}
	if err := version.SetMetadata(input.Metadata); err != nil {
		return nil, err
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var maxVersion int
		err := tx.Model(&models.SectionVersion{}).
			Where("application_id = ? AND section_name = ?", input.ApplicationID, input.SectionName).
			Select("COALESCE(MAX(version_number), 0)").
			Scan(&maxVersion).Error
		if err != nil {
			return err
		}

		err = tx.Model(&models.SectionVersion{}).
			Where("application_id = ? AND section_name = ? AND is_current_version = ?",
				input.ApplicationID, input.SectionName, true).
			Update("is_current_version", false).Error
		if err != nil {
			return err
		}

		version.VersionNumber = maxVersion + 1
		return tx.Create(version).Error
	})
	if err != nil {
		return nil, err
	}
	return version, nil
}

// GetCurrent gibt die aktuelle Version einer Sektion zurück.
func (s *SectionService) GetCurrent(applicationID, sectionName string) (*models.SectionVersion, error) {
	var version models.SectionVersion
	err := s.DB.
		Where("application_id = ? AND section_name = ? AND is_current_version = ?",
			applicationID, sectionName, true).
		First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "section", ID: applicationID + "/" + sectionName}
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetByID gibt eine Version anhand ihrer ID zurück.
func (s *SectionService) GetByID(id string) (*models.SectionVersion, error) {
	var version models.SectionVersion
	err := s.DB.Where("id = ?", id).First(&version).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "section version", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &version, nil
}

// GetHistory gibt alle Versionen einer Sektion absteigend nach
// Versionsnummer zurück.
func (s *SectionService) GetHistory(applicationID, sectionName string) ([]models.SectionVersion, error) {
	var versions []models.SectionVersion
	err := s.DB.
		Where("application_id = ? AND section_name = ?", applicationID, sectionName).
		Order("version_number DESC").
		Find(&versions).Error
	return versions, err
}

// ListCurrent gibt die aktuellen Versionen aller Sektionen eines Antrags
// zurück, sortiert nach Sektionsname.
func (s *SectionService) ListCurrent(applicationID string) ([]models.SectionVersion, error) {
	var versions []models.SectionVersion
	err := s.DB.
		Where("application_id = ? AND is_current_version = ?", applicationID, true).
		Order("section_name ASC").
		Find(&versions).Error
	return versions, err
}

// Promote macht eine ältere Version wieder zur aktuellen. Der Inhalt wird
// nicht kopiert, nur der Zeiger umgesetzt.
func (s *SectionService) Promote(id string) (*models.SectionVersion, error) {
	version, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.SectionVersion{}).
			Where("application_id = ? AND section_name = ? AND id <> ?",
				version.ApplicationID, version.SectionName, version.ID).
			Update("is_current_version", false).Error
		if err != nil {
			return err
		}
		return tx.Model(version).Update("is_current_version", true).Error
	})
	if err != nil {
		return nil, err
	}
	version.IsCurrentVersion = true
	return version, nil
}

// UpdateStatus setzt den Status einer Version. Bei "approved" und "rejected"
// werden Prüfer und Zeitpunkt festgehalten; beim Wechsel auf "under_review"
// wird eine Review-Aufgabe angelegt, sofern für die Sektion noch keine offene
// existiert.
func (s *SectionService) UpdateStatus(id, status, reviewedBy, reviewNotes string) (*models.SectionVersion, error) {
	switch status {
	case models.StatusDraft, models.StatusUnderReview, models.StatusApproved, models.StatusRejected:
	default:
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown status %q", status)}
	}

	version, err := s.GetByID(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"status": status}
	if status == models.StatusApproved || status == models.StatusRejected {
		now := time.Now()
		updates["reviewed_by"] = reviewedBy
		updates["review_notes"] = reviewNotes
		updates["reviewed_at"] = &now
		version.ReviewedBy = reviewedBy
		version.ReviewNotes = reviewNotes
		version.ReviewedAt = &now
	}
	if err := s.DB.Model(version).Updates(updates).Error; err != nil {
		return nil, err
	}
	version.Status = status

	if status == models.StatusUnderReview {
		if err := s.ensureReviewTask(version.ApplicationID, version.SectionName); err != nil {
			return nil, err
		}
	}
	return version, nil
}

// ensureReviewTask legt eine offene Review-Aufgabe an, falls für die Sektion
// noch keine existiert.
func (s *SectionService) ensureReviewTask(applicationID, sectionName string) error {
	var count int64
	err := s.DB.Model(&models.ReviewTask{}).
		Where("application_id = ? AND section_name = ? AND status = ?",
			applicationID, sectionName, models.TaskOpen).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return s.DB.Create(&models.ReviewTask{
		ApplicationID: applicationID,
		SectionName:   sectionName,
		Title:         "Review: " + sectionName,
		Status:        models.TaskOpen,
	}).Error
}

// CompleteReviewTask schließt eine offene Review-Aufgabe ab.
func (s *SectionService) CompleteReviewTask(taskID uint) error {
	now := time.Now()
	result := s.DB.Model(&models.ReviewTask{}).
		Where("id = ? AND status = ?", taskID, models.TaskOpen).
		Updates(map[string]any{"status": models.TaskDone, "completed_at": &now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return &NotFoundError{Resource: "review task", ID: fmt.Sprint(taskID)}
	}
	return nil
}

// ListOpenTasks gibt die offenen Review-Aufgaben eines Antrags zurück.
func (s *SectionService) ListOpenTasks(applicationID string) ([]models.ReviewTask, error) {
	var tasks []models.ReviewTask
	err := s.DB.
		Where("application_id = ? AND status = ?", applicationID, models.TaskOpen).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// Delete entfernt eine Version endgültig. Das Löschen der aktuellen Version
// lässt die Sektion ohne aktuelle Version zurück und wird nur protokolliert,
// nicht verhindert.
func (s *SectionService) Delete(id string) error {
	version, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if version.IsCurrentVersion {
		s.Logger.Warn("Lösche aktuelle Version, Sektion bleibt ohne aktuelle Version zurück",
			zap.String("application_id", version.ApplicationID),
			zap.String("section", version.SectionName),
			zap.Int("version", version.VersionNumber))
	}
	return s.DB.Delete(version).Error
}
