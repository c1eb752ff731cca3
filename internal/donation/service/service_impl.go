package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/donation/canonical"
	"github.com/smallbiznis/donara/internal/donation/domain"
	"github.com/smallbiznis/donara/internal/donation/identifier"
	gatewaydomain "github.com/smallbiznis/donara/internal/gateway/domain"
	obscontext "github.com/smallbiznis/donara/internal/observability/context"
	"github.com/smallbiznis/donara/internal/observability/logger"
	"github.com/smallbiznis/donara/internal/observability/metrics"
	dbpkg "github.com/smallbiznis/donara/pkg/db"
	"github.com/smallbiznis/donara/pkg/db/pagination"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	operationResolve = "resolve"
	operationResend  = "resend"
	operationManual  = "manual"
	operationWebhook = "webhook"

	outcomeExisting = "existing"
	outcomeCreated  = "created"
	outcomeFailed   = "failed"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Aggregator gatewaydomain.Aggregator
	Webhooks   gatewaydomain.WebhookParser
	Notifier   domain.Notifier
	Metrics    *metrics.Metrics          `optional:"true"`
	Reconcile  *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	aggregator gatewaydomain.Aggregator
	webhooks   gatewaydomain.WebhookParser
	notifier   domain.Notifier
	metrics    *metrics.Metrics
	reconcile  *metrics.ReconcileMetrics
	tracer     trace.Tracer
	newID      func() uuid.UUID
}

func New(p Params) domain.Service {
	c := p.Clock
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("donation.service"),
		genID:      p.GenID,
		clock:      c,
		repo:       p.Repo,
		aggregator: p.Aggregator,
		webhooks:   p.Webhooks,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
		reconcile:  p.Reconcile,
		tracer:     otel.Tracer("donara/donation"),
		newID:      uuid.New,
	}
}

func (s *Service) ResolveOrCreate(ctx context.Context, ids domain.Identifiers) (domain.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "donation.resolve_or_create")
	defer span.End()

	ids, err := identifier.Validate(ids)
	if err != nil {
		return domain.Resolution{}, s.fail(ctx, span, operationResolve, err)
	}
	res, err := s.resolveOrCreate(ctx, ids, operationResolve)
	if err != nil {
		return domain.Resolution{}, s.fail(ctx, span, operationResolve, err)
	}
	return res, nil
}

func (s *Service) ResolveRaw(ctx context.Context, raws ...string) (domain.Resolution, error) {
	ids, err := identifier.Merge(raws...)
	if err != nil {
		return domain.Resolution{}, err
	}
	return s.ResolveOrCreate(ctx, ids)
}

// ResendReceipt resolves raw like ResolveOrCreate and then always sends the
// donor a donation made email, whether or not the donation already existed.
func (s *Service) ResendReceipt(ctx context.Context, raw string) (domain.Resolution, error) {
	ctx, span := s.tracer.Start(ctx, "donation.resend_receipt")
	defer span.End()

	classified := identifier.Classify(raw)
	var ids domain.Identifiers
	if err := identifier.Assign(&ids, classified); err != nil {
		return domain.Resolution{}, s.fail(ctx, span, operationResend, err)
	}

	res, err := s.resolveOrCreate(ctx, ids, operationResend)
	if err != nil {
		return domain.Resolution{}, s.fail(ctx, span, operationResend, err)
	}

	d := res.Donation
	if err := s.notifier.Send(ctx, domain.NotificationDonationMade, d, d.Donor); err != nil {
		return domain.Resolution{}, s.fail(ctx, span, operationResend, err)
	}

	actorKind, actorID := obscontext.ActorFromContext(ctx)
	s.recordEvent(ctx, d.ID(), domain.EventReceiptResent, datatypes.JSONMap{
		"identifier":      classified.Value,
		"already_existed": res.AlreadyExisted,
		"actor_type":      actorKind,
		"actor_id":        actorID,
	})
	logger.WithDonation(logger.WithContext(ctx, s.log), d.ID()).Info("receipt resent",
		zap.Bool("already_existed", res.AlreadyExisted),
	)
	return res, nil
}

func (s *Service) CreateManual(ctx context.Context, input domain.ManualDonationInput) (domain.Donation, error) {
	ctx, span := s.tracer.Start(ctx, "donation.create_manual")
	defer span.End()

	d, err := canonical.FromManualInput(input, s.newID(), s.clock.Now())
	if err != nil {
		return domain.Donation{}, s.fail(ctx, span, operationManual, err)
	}

	stored, existed, err := s.persist(ctx, d)
	if err != nil {
		return domain.Donation{}, s.fail(ctx, span, operationManual, err)
	}
	if existed {
		// A freshly generated ledger id collided with a stored row.
		return domain.Donation{}, s.fail(ctx, span, operationManual, fmt.Errorf("ledger id %s already in use", d.ID()))
	}

	s.notifyCreated(ctx, stored)
	s.metrics.RecordResolution(ctx, operationManual, outcomeCreated)
	return stored, nil
}

func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*domain.Resolution, error) {
	event, err := s.webhooks.Parse(payload, signature)
	if errors.Is(err, gatewaydomain.ErrEventIgnored) {
		s.log.Debug("webhook event ignored", zap.String("event_id", event.ID), zap.String("event_type", event.Type))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ctx = obscontext.WithActor(ctx, obscontext.ActorWebhook, event.ID)
	ctx, span := s.tracer.Start(ctx, "donation.handle_webhook", trace.WithAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.event_type", event.Type),
	))
	defer span.End()

	ids, err := identifier.Validate(event.Identifiers)
	if err != nil {
		return nil, s.fail(ctx, span, operationWebhook, err)
	}
	res, err := s.resolveOrCreate(ctx, ids, operationWebhook)
	if err != nil {
		return nil, s.fail(ctx, span, operationWebhook, err)
	}
	return &res, nil
}

// Fetch returns the donation for ids without writing anything. Payments not
// yet in the ledger are canonicalized straight from the gateway.
func (s *Service) Fetch(ctx context.Context, ids domain.Identifiers) (domain.Donation, error) {
	ids, err := identifier.Validate(ids)
	if err != nil {
		return domain.Donation{}, err
	}

	existing, err := s.loadExisting(ctx, ids)
	if err != nil {
		return domain.Donation{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	if !ids.HasPaymentReference() {
		return domain.Donation{}, domain.ErrNotFound
	}

	event, err := s.aggregator.Aggregate(ctx, ids)
	if err != nil {
		return domain.Donation{}, err
	}
	d, err := canonical.FromGatewayEvent(*event, s.newID)
	if err != nil {
		return domain.Donation{}, err
	}
	s.enrichDonor(ctx, &d)
	return d, nil
}

func (s *Service) ListForDonor(ctx context.Context, email string) ([]domain.Donation, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}

	rows, err := s.repo.ListDonationsByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	return s.toDonations(ctx, rows)
}

func (s *Service) List(ctx context.Context, req domain.ListDonationsRequest) (domain.ListDonationsResponse, error) {
	pageSize := pagination.NormalizePageSize(req.PageSize)
	rows, err := s.repo.ListDonations(ctx, s.db, domain.ListDonationFilter{
		Email:    strings.TrimSpace(req.Email),
		Livemode: req.Livemode,
		Source:   req.Source,
	}, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  pageSize,
	})
	if err != nil {
		return domain.ListDonationsResponse{}, err
	}

	rows, pageInfo := pagination.BuildCursorPageInfo(rows, pageSize, func(row domain.DonationRecord) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        row.ID,
			DonatedAt: row.DonationCreated.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	donations, err := s.toDonations(ctx, rows)
	if err != nil {
		return domain.ListDonationsResponse{}, err
	}
	return domain.ListDonationsResponse{
		PageInfo:  *pageInfo,
		Donations: donations,
	}, nil
}

func (s *Service) UpdateDistributionStatus(ctx context.Context, id string, status domain.DistributionStatus) (domain.Donation, error) {
	if !status.Valid() {
		return domain.Donation{}, domain.ErrInvalidDistributionStatus
	}
	classified := identifier.Classify(id)
	if classified.Kind != identifier.KindLedgerID {
		return domain.Donation{}, fmt.Errorf("%w: %q is not a donation id", domain.ErrInvalidIdentifier, id)
	}

	updated, err := s.repo.UpdateDistributionStatus(ctx, s.db, classified.Value, status)
	if err != nil {
		return domain.Donation{}, err
	}
	if !updated {
		return domain.Donation{}, domain.ErrNotFound
	}

	s.recordEvent(ctx, classified.Value, domain.EventDistributionMoved, datatypes.JSONMap{"status": string(status)})
	return s.Fetch(ctx, domain.Identifiers{LedgerID: classified.Value})
}

// resolveOrCreate checks the ledger before any gateway call and persists a
// new donation at most once per charge.
func (s *Service) resolveOrCreate(ctx context.Context, ids domain.Identifiers, operation string) (domain.Resolution, error) {
	start := time.Now()
	defer func() { s.reconcile.ObserveResolve(operation, time.Since(start)) }()

	existing, err := s.loadExisting(ctx, ids)
	if err != nil {
		return domain.Resolution{}, err
	}
	if existing != nil {
		s.metrics.RecordResolution(ctx, operation, outcomeExisting)
		return domain.Resolution{Donation: *existing, AlreadyExisted: true}, nil
	}

	if !ids.HasPaymentReference() {
		if ids.LedgerID != "" {
			return domain.Resolution{}, fmt.Errorf("%w: donation %s", domain.ErrNotFound, ids.LedgerID)
		}
		return domain.Resolution{}, domain.ErrMissingIdentifier
	}

	event, err := s.aggregator.Aggregate(ctx, ids)
	if err != nil {
		if domain.IsUpstreamInconsistency(err) {
			s.metrics.RecordAggregationFailure(ctx, "incomplete_gateway_data")
		}
		return domain.Resolution{}, err
	}

	// The aggregated bag may reach a row the caller's partial bag could not.
	if event.Identifiers != ids {
		existing, err = s.loadExisting(ctx, event.Identifiers)
		if err != nil {
			return domain.Resolution{}, err
		}
		if existing != nil {
			s.metrics.RecordResolution(ctx, operation, outcomeExisting)
			return domain.Resolution{Donation: *existing, AlreadyExisted: true}, nil
		}
	}

	d, err := canonical.FromGatewayEvent(*event, s.newID)
	if err != nil {
		if domain.IsUpstreamInconsistency(err) {
			s.metrics.RecordAggregationFailure(ctx, "malformed_gateway_metadata")
		}
		return domain.Resolution{}, err
	}

	stored, existed, err := s.persist(ctx, d)
	if err != nil {
		return domain.Resolution{}, err
	}
	if existed {
		s.metrics.RecordResolution(ctx, operation, outcomeExisting)
		return domain.Resolution{Donation: stored, AlreadyExisted: true}, nil
	}

	s.notifyCreated(ctx, stored)
	s.metrics.RecordResolution(ctx, operation, outcomeCreated)
	return domain.Resolution{Donation: stored, AlreadyExisted: false}, nil
}

// persist inserts d with its creation event. A unique violation on the charge
// means a concurrent writer stored the same payment first; that row is
// returned with existed set.
func (s *Service) persist(ctx context.Context, d domain.Donation) (domain.Donation, bool, error) {
	donor := s.enrichDonor(ctx, &d)
	linkCustomer := donor != nil && d.Identifiers.CustomerID != "" &&
		!slices.Contains(decodeCustomerIDs(donor.StripeCustomerIDs), d.Identifiers.CustomerID)

	row, err := canonical.ToLedgerRow(d)
	if err != nil {
		return domain.Donation{}, false, err
	}
	now := s.clock.Now()
	row.LoggedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertDonation(ctx, tx, &row); err != nil {
			return err
		}
		if linkCustomer {
			if err := s.repo.AppendDonorCustomerID(ctx, tx, donor.ID, d.Identifiers.CustomerID); err != nil {
				return err
			}
		}
		return s.repo.InsertEvent(ctx, tx, &domain.DonationEvent{
			ID:         s.genID.Generate(),
			DonationID: row.ID,
			EventType:  domain.EventDonationCreated,
			Detail:     eventDetail(d),
			OccurredAt: now,
		})
	})
	if err == nil {
		s.metrics.RecordDonationCreated(ctx, string(d.Source), d.Live)
		logger.WithDonation(logger.WithContext(ctx, s.log), d.ID()).Info("donation recorded",
			zap.String("source", string(d.Source)),
			zap.String("charge_id", d.Identifiers.ChargeID),
			zap.Int64("amount_in_cents", d.AmountDonatedCents),
		)
		return d, false, nil
	}
	if !dbpkg.IsDuplicateKeyErr(err) {
		return domain.Donation{}, false, err
	}

	s.reconcile.IncLedgerConflict()
	var existing *domain.Donation
	if d.Identifiers.ChargeID != "" {
		existing, _ = s.loadExisting(ctx, domain.Identifiers{ChargeID: d.Identifiers.ChargeID})
	}
	if existing == nil {
		// The charge is not stored, so the collision is on the ledger id.
		return domain.Donation{}, false, s.ledgerIDCollision(ctx, d, err)
	}

	s.log.Warn("donation insert lost race to concurrent writer",
		zap.String("donation_id", existing.ID()),
		zap.String("charge_id", d.Identifiers.ChargeID),
	)
	s.recordEvent(ctx, existing.ID(), domain.EventInsertConflict, datatypes.JSONMap{
		"charge_id":         d.Identifiers.ChargeID,
		"discarded_id":      d.Identifiers.LedgerID,
		"conflict_resolved": true,
	})
	return *existing, true, nil
}

// ledgerIDCollision explains a duplicate key that no stored row for the same
// charge accounts for. A gateway donation whose metadata names a ledger id
// already held by another charge is an upstream inconsistency.
func (s *Service) ledgerIDCollision(ctx context.Context, d domain.Donation, writeErr error) error {
	if d.Source != domain.SourceGateway {
		return writeErr
	}
	owner, err := s.loadExisting(ctx, domain.Identifiers{LedgerID: d.Identifiers.LedgerID})
	if err != nil || owner == nil {
		return writeErr
	}
	s.metrics.RecordAggregationFailure(ctx, "malformed_gateway_metadata")
	logger.WithDonation(logger.WithContext(ctx, s.log), owner.ID()).Warn("gateway metadata reuses a stored donation id",
		zap.String("charge_id", d.Identifiers.ChargeID),
		zap.String("stored_charge_id", owner.Identifiers.ChargeID),
	)
	return &domain.MalformedGatewayMetadataError{
		Key:      canonical.MetadataIdentifiers,
		ChargeID: d.Identifiers.ChargeID,
		Err:      fmt.Errorf("donation_id %s already records charge %q", owner.ID(), owner.Identifiers.ChargeID),
	}
}

func (s *Service) loadExisting(ctx context.Context, ids domain.Identifiers) (*domain.Donation, error) {
	row, err := s.repo.FindDonation(ctx, s.db, ids)
	if err != nil || row == nil {
		return nil, err
	}
	proofs, err := s.repo.ListProofs(ctx, s.db, []string{row.ID})
	if err != nil {
		return nil, err
	}
	d, err := canonical.FromLedgerRow(*row, proofs)
	if err != nil {
		return nil, err
	}
	if err := matchStored(ids, d.Identifiers); err != nil {
		return nil, err
	}
	s.enrichDonor(ctx, &d)
	return &d, nil
}

// matchStored rejects a bag whose populated payment fields disagree with the
// row one of them resolved to.
func matchStored(ids, stored domain.Identifiers) error {
	fields := []struct {
		kind  identifier.Kind
		given string
		found string
	}{
		{identifier.KindLedgerID, ids.LedgerID, stored.LedgerID},
		{identifier.KindCharge, ids.ChargeID, stored.ChargeID},
		{identifier.KindPaymentIntent, ids.PaymentIntentID, stored.PaymentIntentID},
		{identifier.KindBalanceTransaction, ids.BalanceTransactionID, stored.BalanceTransactionID},
	}
	for _, f := range fields {
		if f.given != "" && f.given != f.found {
			return &domain.ConflictError{Field: f.kind.String(), Values: []string{f.given, f.found}}
		}
	}
	return nil
}

func (s *Service) toDonations(ctx context.Context, rows []domain.DonationRecord) ([]domain.Donation, error) {
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	proofs, err := s.repo.ListProofs(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	byDonation := make(map[string][]domain.ProofRecord, len(rows))
	for _, p := range proofs {
		byDonation[p.DonationID] = append(byDonation[p.DonationID], p)
	}

	donors := make(map[string]*domain.DonorRecord)
	out := make([]domain.Donation, 0, len(rows))
	for _, row := range rows {
		d, err := canonical.FromLedgerRow(row, byDonation[row.ID])
		if err != nil {
			return nil, err
		}
		key := d.Donor.ID + "|" + strings.ToLower(d.Donor.Email)
		donor, seen := donors[key]
		if !seen {
			donor, err = s.repo.FindDonor(ctx, s.db, d.Donor.ID, d.Donor.Email)
			if err != nil {
				return nil, err
			}
			donors[key] = donor
		}
		applyDonor(&d, donor)
		out = append(out, d)
	}
	return out, nil
}

// enrichDonor attaches portal account details when the donor has one. Lookup
// failures leave the donation as built from its source.
func (s *Service) enrichDonor(ctx context.Context, d *domain.Donation) *domain.DonorRecord {
	donor, err := s.repo.FindDonor(ctx, s.db, d.Donor.ID, d.Donor.Email)
	if err != nil {
		s.log.Warn("donor lookup failed", zap.String("donation_id", d.ID()), zap.Error(err))
		return nil
	}
	applyDonor(d, donor)
	return donor
}

func applyDonor(d *domain.Donation, donor *domain.DonorRecord) {
	if donor == nil {
		return
	}
	d.Donor.ID = donor.ID
	d.Donor.IsAdmin = donor.IsAdmin
	d.Donor.IsProfileComplete = donor.SetUp

	merged := domain.Donor{GatewayCustomerIDs: []string{}}
	for _, id := range decodeCustomerIDs(donor.StripeCustomerIDs) {
		merged.AppendCustomerID(id)
	}
	for _, id := range d.Donor.GatewayCustomerIDs {
		merged.AppendCustomerID(id)
	}
	d.Donor.GatewayCustomerIDs = merged.GatewayCustomerIDs
}

func (s *Service) notifyCreated(ctx context.Context, d domain.Donation) {
	if err := s.notifier.Send(ctx, domain.NotificationDonationCreated, d, d.Donor); err != nil {
		logger.WithDonation(logger.WithContext(ctx, s.log), d.ID()).Warn("donation created notification failed", zap.Error(err))
	}
}

func (s *Service) recordEvent(ctx context.Context, donationID string, eventType domain.EventType, detail datatypes.JSONMap) {
	err := s.repo.InsertEvent(ctx, s.db, &domain.DonationEvent{
		ID:         s.genID.Generate(),
		DonationID: donationID,
		EventType:  eventType,
		Detail:     detail,
		OccurredAt: s.clock.Now(),
	})
	if err != nil {
		s.log.Warn("donation event not recorded",
			zap.String("donation_id", donationID),
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
	}
}

func (s *Service) fail(ctx context.Context, span trace.Span, operation string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, operation)
	s.metrics.RecordResolution(ctx, operation, outcomeFailed)

	log := logger.WithContext(ctx, s.log)
	switch {
	case domain.IsCallerError(err), errors.Is(err, domain.ErrNotFound):
		log.Info("donation request rejected", zap.String("operation", operation), zap.Error(err))
	case domain.IsUpstreamInconsistency(err):
		log.Error("gateway payment record inconsistent", zap.String("operation", operation), zap.Error(err))
	default:
		log.Error("donation operation failed", zap.String("operation", operation), zap.Error(err))
	}
	return err
}

func decodeCustomerIDs(raw datatypes.JSON) []string {
	ids := []string{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &ids)
	}
	return ids
}

func eventDetail(d domain.Donation) datatypes.JSONMap {
	return datatypes.JSONMap{
		"source":          string(d.Source),
		"charge_id":       d.Identifiers.ChargeID,
		"amount_in_cents": d.AmountDonatedCents,
		"livemode":        d.Live,
	}
}
