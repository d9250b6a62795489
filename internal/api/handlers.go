package api

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/reconciler"
	"bank-transfer-reconciler/pkg/errors"
)

// Pong is the ping response
type Pong struct {
	Ping string `json:"ping"`
}

// ReconcileRowsRequest carries pre-extracted rows
type ReconcileRowsRequest struct {
	Rows []models.Row `json:"rows" validate:"required,min=1,max=5000,dive"`
}

// CreateBillingRecordRequest opens a subscription or project record
type CreateBillingRecordRequest struct {
	UserID          uint               `json:"user_id" validate:"required"`
	Kind            models.BillingKind `json:"kind" validate:"required,oneof=subscription project"`
	Price           decimal.Decimal    `json:"price"`
	PaymentDeadline *time.Time         `json:"payment_deadline,omitempty"`
}

// ConfirmPaymentResponse is returned by receipt confirmation
type ConfirmPaymentResponse struct {
	Payment  *models.Payment       `json:"payment"`
	Record   *models.BillingRecord `json:"record"`
	Advanced bool                  `json:"advanced"`
}

// GetPing handles the ping endpoint
func (s *Server) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// PostReconcileRows reconciles operator rows as bank statement evidence
func (s *Server) PostReconcileRows(c *fiber.Ctx) error {
	var req ReconcileRowsRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "body", nil, err).
			WithSuggestion(`send {"rows":[{"date","amount","description","senderName"}]}`)
	}
	if err := s.validate.Struct(&req); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "rows", nil, err)
	}

	report := s.deps.Orchestrator.Service().ReconcileRows(c.UserContext(), req.Rows)
	return c.JSON(report)
}

// PostReconcileDocument reconciles an uploaded statement or receipt
func (s *Server) PostReconcileDocument(c *fiber.Ctx) error {
	source := models.PaymentSource(c.Query("source", string(models.SourceStatement)))
	return s.reconcileUpload(c, source)
}

// PostReceipt reconciles a receipt uploaded by a user. The resulting payment
// awaits confirmation.
func (s *Server) PostReceipt(c *fiber.Ctx) error {
	return s.reconcileUpload(c, models.SourceReceipt)
}

func (s *Server) reconcileUpload(c *fiber.Ctx, source models.PaymentSource) error {
	if !source.IsValid() {
		return errors.ValidationError(errors.CodeInvalidArgument, "source", source, nil).
			WithSuggestion("use statement or receipt")
	}

	header, err := c.FormFile("file")
	if err != nil {
		return errors.ValidationError(errors.CodeMissingField, "file", nil, err).
			WithSuggestion("upload the document as multipart field 'file'")
	}
	if header.Size > int64(s.config.MaxUploadBytes) {
		return errors.ValidationError(errors.CodeInvalidArgument, "file", header.Size, nil).
			WithSuggestion(fmt.Sprintf("documents are limited to %d bytes", s.config.MaxUploadBytes))
	}

	file, err := header.Open()
	if err != nil {
		return errors.ExtractionError(errors.CodeUnreadableDocument, header.Filename, err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return errors.ExtractionError(errors.CodeUnreadableDocument, header.Filename, err)
	}

	report, err := s.deps.Orchestrator.ReconcileDocument(c.UserContext(), reconciler.DocumentRequest{
		Name:   header.Filename,
		Data:   data,
		Source: source,
	})
	if err != nil {
		return err
	}
	return c.JSON(report)
}

// PostConfirmPayment confirms a receipt payment
func (s *Server) PostConfirmPayment(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Engine.ConfirmPayment(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(ConfirmPaymentResponse{
		Payment:  result.Payment,
		Record:   result.Record,
		Advanced: result.Advanced,
	})
}

// GetUserStatus returns the derived payment status of a user
func (s *Server) GetUserStatus(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	result, err := s.deps.Status.ForUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

// PostBillingRecord opens a billing record with a generated code
func (s *Server) PostBillingRecord(c *fiber.Ctx) error {
	var req CreateBillingRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return errors.ValidationError(errors.CodeInvalidFormat, "body", nil, err)
	}
	if err := s.validate.Struct(&req); err != nil {
		return errors.ValidationError(errors.CodeMissingField, "billing_record", nil, err)
	}

	record, err := s.deps.Engine.OpenBillingRecord(c.UserContext(), req.UserID, req.Kind, req.Price, req.PaymentDeadline)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(record)
}

// DeleteBillingRecord purges a record with its payments and intents
func (s *Server) DeleteBillingRecord(c *fiber.Ctx) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}

	if err := s.deps.Engine.PurgeBillingRecord(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func idParam(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ValidationError(errors.CodeInvalidArgument, "id", raw, err)
	}
	return uint(id), nil
}
