package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pharmaledger/backend/internal/domain"
	"pharmaledger/backend/internal/store"
)

var maxGSTRate = decimal.NewFromInt(100)

// SaveMedicine creates or replaces a medicine master. Edits are audited
// with before and after snapshots.
func (s *Service) SaveMedicine(ctx context.Context, medicineID string, req domain.MedicineSaveRequest) (domain.Medicine, error) {
	medicineID = strings.TrimSpace(medicineID)
	if medicineID == "" {
		return domain.Medicine{}, invalidf("medicine id is required")
	}
	if err := validateRequest(req); err != nil {
		return domain.Medicine{}, err
	}
	if req.GSTRate.IsNegative() || req.GSTRate.GreaterThan(maxGSTRate) {
		return domain.Medicine{}, invalidf("gst rate must be between 0 and 100")
	}
	actor := actorOrSystem(ctx)

	var saved domain.Medicine
	err := s.runInTx(ctx, "save_medicine", func(tx store.Tx) error {
		now := s.now().UTC()
		existing, err := tx.GetMedicine(ctx, medicineID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		saved = domain.Medicine{
			ID:           medicineID,
			Name:         strings.TrimSpace(req.Name),
			GenericName:  strings.TrimSpace(req.GenericName),
			Manufacturer: strings.TrimSpace(req.Manufacturer),
			HSNCode:      strings.TrimSpace(req.HSNCode),
			GSTRate:      req.GSTRate,
			Schedule:     strings.TrimSpace(req.Schedule),
			Active:       true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		action := "medicine_create"
		var before any
		if existing != nil {
			action = "medicine_update"
			before = existing
			saved.CreatedAt = existing.CreatedAt
			saved.Active = existing.Active
		}
		if req.Active != nil {
			saved.Active = *req.Active
		}

		if err := tx.SaveMedicine(ctx, saved); err != nil {
			return fmt.Errorf("persist medicine %s: %w", medicineID, err)
		}
		return s.appendAudit(ctx, tx, actor, action, "medicines", medicineID, before, saved)
	})
	if err != nil {
		return domain.Medicine{}, err
	}
	return saved, nil
}

func (s *Service) SaveVendor(ctx context.Context, vendorID string, req domain.VendorSaveRequest) (domain.Vendor, error) {
	vendorID = strings.TrimSpace(vendorID)
	if vendorID == "" {
		return domain.Vendor{}, invalidf("vendor id is required")
	}
	if err := validateRequest(req); err != nil {
		return domain.Vendor{}, err
	}
	actor := actorOrSystem(ctx)

	var saved domain.Vendor
	err := s.runInTx(ctx, "save_vendor", func(tx store.Tx) error {
		existing, err := tx.GetVendor(ctx, vendorID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		saved = domain.Vendor{
			ID:        vendorID,
			Name:      strings.TrimSpace(req.Name),
			GSTIN:     strings.ToUpper(strings.TrimSpace(req.GSTIN)),
			Phone:     strings.TrimSpace(req.Phone),
			Active:    true,
			CreatedAt: s.now().UTC(),
		}
		var before any
		if existing != nil {
			before = existing
			saved.CreatedAt = existing.CreatedAt
			saved.Active = existing.Active
		}
		if req.Active != nil {
			saved.Active = *req.Active
		}
		if err := tx.SaveVendor(ctx, saved); err != nil {
			return fmt.Errorf("persist vendor %s: %w", vendorID, err)
		}
		return s.appendAudit(ctx, tx, actor, "vendor_save", "vendors", vendorID, before, saved)
	})
	if err != nil {
		return domain.Vendor{}, err
	}
	return saved, nil
}

func (s *Service) SaveCustomer(ctx context.Context, customerID string, req domain.CustomerSaveRequest) (domain.Customer, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.Customer{}, invalidf("customer id is required")
	}
	if err := validateRequest(req); err != nil {
		return domain.Customer{}, err
	}
	actor := actorOrSystem(ctx)

	var saved domain.Customer
	err := s.runInTx(ctx, "save_customer", func(tx store.Tx) error {
		existing, err := tx.GetCustomer(ctx, customerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		saved = domain.Customer{
			ID:        customerID,
			Name:      strings.TrimSpace(req.Name),
			Phone:     strings.TrimSpace(req.Phone),
			GSTIN:     strings.ToUpper(strings.TrimSpace(req.GSTIN)),
			CreatedAt: s.now().UTC(),
		}
		var before any
		if existing != nil {
			before = existing
			saved.CreatedAt = existing.CreatedAt
		}
		if err := tx.SaveCustomer(ctx, saved); err != nil {
			return fmt.Errorf("persist customer %s: %w", customerID, err)
		}
		return s.appendAudit(ctx, tx, actor, "customer_save", "customers", customerID, before, saved)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	return saved, nil
}
