package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"homecare/lib/models"
	"homecare/lib/query"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// SlotChecker answers overlap questions inside the transaction that is about
// to write the slot.
type SlotChecker interface {
	// HasOverlap serialises writers of the same (staff, date) pair, then
	// reports whether a slot-holding appointment other than excludeID
	// intersects slot.
	HasOverlap(ctx context.Context, slot models.Slot, staff string, excludeID int64) (bool, error)
}

type AppointmentRepository interface {
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	GetAppointmentByID(ctx context.Context, id int64) (*models.Appointment, error)
	ListAppointments(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Appointment], error)
	MutateAppointment(ctx context.Context, id int64, fn func(ctx context.Context, slots SlotChecker, appt *models.Appointment) error) (*models.Appointment, error)
	ListSlotHolders(ctx context.Context, date models.Date, staff string) ([]models.Slot, error)
}

type AppointmentDao struct {
	DB     *sql.DB
	Logger *logrus.Logger
}

const appointmentColumns = `id, user_id, service_type, title, description, appointment_date, start_time, end_time,
	status, priority, address, contact_phone, special_requirements, notes, admin_notes, assigned_staff,
	confirmed_at, started_at, completed_at, cancelled_at, cancellation_reason, cancellation_notes,
	rescheduled_at, reschedule_reason, created_at, updated_at`

var AppointmentListSpec = query.Spec{
	Filters: []query.Filter{
		{Key: "status", Column: "status", Accept: query.OneOf(models.AppointmentStatusValues()...)},
		{Key: "priority", Column: "priority", Accept: query.OneOf(models.PriorityValues()...)},
		{Key: "service_type", Column: "service_type", Accept: query.NonEmpty(100)},
		{Key: "assigned_staff", Column: "assigned_staff", Accept: query.NonEmpty(255)},
		{Key: "date", Aliases: []string{"appointment_date"}, Column: "appointment_date", Accept: acceptDate},
		{Key: "user_id", Column: "user_id", Accept: query.PositiveID()},
	},
	SearchColumns: []string{"title", "description", "address", "service_type"},
	SortColumns: map[string]string{
		"id":               "id",
		"appointment_date": "(appointment_date + start_time)",
		"created_at":       "created_at",
		"priority":         query.Ranked("priority", models.PriorityValues()...),
		"status":           "status",
		"title":            "title",
	},
	DefaultSort:      "appointment_date",
	DefaultDirection: query.Desc,
	IDColumn:         "id",
	StatusExpr:       "status",
	StatusKeys:       models.AppointmentStatusValues(),
}

func acceptDate(raw string) (any, bool) {
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, false
	}
	return d, true
}

var appointmentListing = listing{columns: appointmentColumns, from: "appointments", spec: AppointmentListSpec}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	a := &models.Appointment{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.ServiceType, &a.Title, &a.Description, &a.AppointmentDate, &a.StartTime, &a.EndTime,
		&a.Status, &a.Priority, &a.Address, &a.ContactPhone, &a.SpecialRequirements, &a.Notes, &a.AdminNotes, &a.AssignedStaff,
		&a.ConfirmedAt, &a.StartedAt, &a.CompletedAt, &a.CancelledAt, &a.CancellationReason, &a.CancellationNotes,
		&a.RescheduledAt, &a.RescheduleReason, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (dao *AppointmentDao) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	err := dao.DB.QueryRowContext(ctx, `
		INSERT INTO appointments (
			user_id, service_type, title, description, appointment_date, start_time, end_time,
			status, priority, address, contact_phone, special_requirements, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`,
		appt.UserID, appt.ServiceType, appt.Title, appt.Description, appt.AppointmentDate, appt.StartTime, appt.EndTime,
		appt.Status, appt.Priority, appt.Address, appt.ContactPhone, appt.SpecialRequirements, appt.Notes,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		dao.Logger.WithError(err).WithFields(logrus.Fields{
			"operation": "CreateAppointment",
			"user_id":   appt.UserID,
		}).Error("Failed to insert appointment")
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (dao *AppointmentDao) GetAppointmentByID(ctx context.Context, id int64) (*models.Appointment, error) {
	a, err := scanAppointment(dao.DB.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return a, nil
}

func (dao *AppointmentDao) ListAppointments(ctx context.Context, scope []query.Condition, p query.Params) (*Page[models.Appointment], error) {
	return list(ctx, dao.DB, appointmentListing, scope, p, func(row rowScanner) (models.Appointment, error) {
		a, err := scanAppointment(row)
		if err != nil {
			return models.Appointment{}, err
		}
		return *a, nil
	})
}

func (dao *AppointmentDao) MutateAppointment(ctx context.Context, id int64, fn func(ctx context.Context, slots SlotChecker, appt *models.Appointment) error) (*models.Appointment, error) {
	logger := dao.Logger.WithFields(logrus.Fields{
		"operation":      "MutateAppointment",
		"appointment_id": id,
	})

	tx, err := dao.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := scanAppointment(tx.QueryRowContext(ctx, "SELECT "+appointmentColumns+" FROM appointments WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFound("appointment", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock appointment: %w", err)
	}

	if err := fn(ctx, txSlotChecker{tx: tx}, a); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE appointments SET
			title = $1, description = $2, appointment_date = $3, start_time = $4, end_time = $5,
			status = $6, priority = $7, address = $8, contact_phone = $9, special_requirements = $10,
			notes = $11, admin_notes = $12, assigned_staff = $13, confirmed_at = $14, started_at = $15,
			completed_at = $16, cancelled_at = $17, cancellation_reason = $18, cancellation_notes = $19,
			rescheduled_at = $20, reschedule_reason = $21, updated_at = NOW()
		WHERE id = $22
		RETURNING updated_at
	`,
		a.Title, a.Description, a.AppointmentDate, a.StartTime, a.EndTime,
		a.Status, a.Priority, a.Address, a.ContactPhone, a.SpecialRequirements,
		a.Notes, a.AdminNotes, a.AssignedStaff, a.ConfirmedAt, a.StartedAt,
		a.CompletedAt, a.CancelledAt, a.CancellationReason, a.CancellationNotes,
		a.RescheduledAt, a.RescheduleReason, a.ID,
	).Scan(&a.UpdatedAt)
	if err != nil {
		logger.WithError(err).Error("Failed to update appointment")
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		logger.WithError(err).Error("Failed to commit appointment update")
		return nil, fmt.Errorf("failed to commit appointment update: %w", err)
	}
	return a, nil
}

// ListSlotHolders returns the slots taken on date by staff.
func (dao *AppointmentDao) ListSlotHolders(ctx context.Context, date models.Date, staff string) ([]models.Slot, error) {
	rows, err := dao.DB.QueryContext(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE appointment_date = $1 AND assigned_staff = $2 AND status = ANY($3)
		ORDER BY start_time
	`, date, staff, pq.Array(models.SlotHoldingStatuses()))
	if err != nil {
		return nil, fmt.Errorf("failed to query slot holders: %w", err)
	}
	defer rows.Close()

	slots := []models.Slot{}
	for rows.Next() {
		s := models.Slot{Date: date}
		if err := rows.Scan(&s.Start, &s.End); err != nil {
			return nil, fmt.Errorf("failed to scan slot: %w", err)
		}
		slots = append(slots, s)
	}
	return slots, rows.Err()
}

type txSlotChecker struct {
	tx *sql.Tx
}

func slotLockKey(staff string, date models.Date) string {
	return "appointment-slot:" + staff + ":" + date.String()
}

func (c txSlotChecker) HasOverlap(ctx context.Context, slot models.Slot, staff string, excludeID int64) (bool, error) {
	if _, err := c.tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", slotLockKey(staff, slot.Date)); err != nil {
		return false, fmt.Errorf("failed to lock slot: %w", err)
	}

	var exists bool
	err := c.tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE appointment_date = $1 AND assigned_staff = $2 AND status = ANY($3) AND id <> $4
				AND start_time < $5 AND end_time > $6
		)
	`, slot.Date, staff, pq.Array(models.SlotHoldingStatuses()), excludeID, slot.End, slot.Start).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slot overlap: %w", err)
	}
	return exists, nil
}
