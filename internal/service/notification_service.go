package service

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/realtime"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService is the NotificationDispatcher. Every notice is persisted before it
// is pushed; the row, not the push, is what makes delivery at-least-once.
type NotificationService interface {
	OnRequestCreated(ctx context.Context, req model.Request) error
	OnStepDecided(ctx context.Context, req model.Request, step model.ApprovalStep) error

	List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error)
	UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	requests      repository.RequestRepository
	steps         repository.StepRepository
	users         repository.UserRepository
	txManager     repository.TransactionManager
	locks         *RequestLocks
	events        EventPublisher
	timeout       time.Duration
	now           func() time.Time
	log           *zap.Logger
}

type NotificationDeps struct {
	Notifications repository.NotificationRepository
	Requests      repository.RequestRepository
	Steps         repository.StepRepository
	Users         repository.UserRepository
	TxManager     repository.TransactionManager
	Locks         *RequestLocks
	Events        EventPublisher
	Timeout       time.Duration
	Log           *zap.Logger
}

func NewNotificationService(d NotificationDeps) NotificationService {
	return &notificationService{
		notifications: d.Notifications,
		requests:      d.Requests,
		steps:         d.Steps,
		users:         d.Users,
		txManager:     d.TxManager,
		locks:         d.Locks,
		events:        d.Events,
		timeout:       d.Timeout,
		now:           time.Now,
		log:           d.Log,
	}
}

type notice struct {
	recipient uuid.UUID
	kind      model.NotificationKind
	title     string
	message   string
	dedupe    string
}

// OnRequestCreated tells every holder of the first required role that a request awaits them.
func (s *notificationService) OnRequestCreated(ctx context.Context, req model.Request) error {
	unlock := s.locks.Lock(req.ID)
	defer unlock()

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	steps, err := s.steps.ListByRequest(ctx, req.ID)
	if err != nil {
		return storeErr(ctx, err, "load approval steps")
	}

	var notices []notice
	if len(steps) > 0 {
		first := steps[0]
		recipients, err := s.holders(ctx, first.Role, req.RequesterID)
		if err != nil {
			return err
		}
		for _, u := range recipients {
			notices = append(notices, notice{
				recipient: u.ID,
				kind:      model.NotificationRequestCreated,
				title:     fmt.Sprintf("New %s request %s", humanType(req.Type), req.RequestNo),
				message:   fmt.Sprintf("%s (%s) is waiting for %s approval.", req.ItemName, describeSize(req), first.Role),
				dedupe:    fmt.Sprintf("%s:%s:%s", model.NotificationRequestCreated, req.ID, u.ID),
			})
		}
	}

	return s.persist(ctx, req, notices, func(txCtx context.Context) error {
		return s.requests.MarkCreatedNotified(txCtx, req.ID, s.now())
	})
}

// OnStepDecided notifies the next role after an intermediate approval, and the requester
// once the request is rejected or fully approved.
func (s *notificationService) OnStepDecided(ctx context.Context, req model.Request, step model.ApprovalStep) error {
	if step.Decision == model.DecisionPending {
		return nil
	}

	unlock := s.locks.Lock(req.ID)
	defer unlock()

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	steps, err := s.steps.ListByRequest(ctx, req.ID)
	if err != nil {
		return storeErr(ctx, err, "load approval steps")
	}

	var next *model.ApprovalStep
	for i := range steps {
		if steps[i].Position == step.Position+1 {
			next = &steps[i]
			break
		}
	}

	var notices []notice
	switch {
	case step.Decision == model.DecisionRejected:
		notices = append(notices, notice{
			recipient: req.RequesterID,
			kind:      model.NotificationRequestRejected,
			title:     fmt.Sprintf("Request %s was rejected", req.RequestNo),
			message:   withComments(fmt.Sprintf("%s rejected %s.", step.Role, req.ItemName), step.Comments),
		})
	case next == nil:
		notices = append(notices, notice{
			recipient: req.RequesterID,
			kind:      model.NotificationRequestApproved,
			title:     fmt.Sprintf("Request %s is fully approved", req.RequestNo),
			message:   fmt.Sprintf("%s (%s) passed every approval.", req.ItemName, describeSize(req)),
		})
	default:
		recipients, err := s.holders(ctx, next.Role, req.RequesterID)
		if err != nil {
			return err
		}
		for _, u := range recipients {
			notices = append(notices, notice{
				recipient: u.ID,
				kind:      model.NotificationAwaitingYou,
				title:     fmt.Sprintf("Request %s awaits your approval", req.RequestNo),
				message:   withComments(fmt.Sprintf("%s approved %s (%s); %s is next.", step.Role, req.ItemName, describeSize(req), next.Role), step.Comments),
			})
		}
	}
	for i := range notices {
		notices[i].dedupe = fmt.Sprintf("%s:%s:%s:%s", notices[i].kind, req.ID, step.Role, notices[i].recipient)
	}

	return s.persist(ctx, req, notices, func(txCtx context.Context) error {
		return s.steps.MarkNotified(txCtx, step.ID, s.now())
	})
}

// persist writes notices and the dispatch marker together, then pushes the rows that are new.
func (s *notificationService) persist(ctx context.Context, req model.Request, notices []notice, mark func(context.Context) error) error {
	var created []model.Notification
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		for _, nt := range notices {
			n := model.Notification{
				RecipientID:      nt.recipient,
				Kind:             nt.kind,
				Title:            nt.title,
				Message:          nt.message,
				RelatedRequestID: &req.ID,
				DedupeKey:        nt.dedupe,
			}
			ok, err := s.notifications.Create(txCtx, &n)
			if err != nil {
				return storeErr(txCtx, err, "persist notification")
			}
			if ok {
				created = append(created, n)
			}
		}
		return storeErr(txCtx, mark(txCtx), "mark dispatched")
	})
	if err != nil {
		return err
	}

	events := make([]realtime.Event, 0, len(created))
	for i := range created {
		events = append(events, realtime.NotificationEvent(realtime.OpInsert, &created[i]))
	}
	s.events.Publish(events...)

	if len(created) > 0 {
		s.log.Info("notifications dispatched",
			zap.String("request_id", req.ID.String()),
			zap.Int("count", len(created)))
	}
	return nil
}

func (s *notificationService) holders(ctx context.Context, role model.Role, exclude uuid.UUID) ([]model.User, error) {
	users, err := s.users.ListByRole(ctx, role)
	if err != nil {
		return nil, storeErr(ctx, err, "list "+string(role)+" users")
	}
	out := users[:0]
	for _, u := range users {
		if u.ID != exclude {
			out = append(out, u)
		}
	}
	if len(out) == 0 {
		s.log.Warn("no users hold approver role", zap.String("role", string(role)))
	}
	return out, nil
}

func (s *notificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page, limit int) ([]NotificationResponse, int64, error) {
	page, limit = normalizePage(page, limit)

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	rows, total, err := s.notifications.ListByRecipient(ctx, userID, unreadOnly, page, limit)
	if err != nil {
		return nil, 0, storeErr(ctx, err, "list notifications")
	}
	result := make([]NotificationResponse, 0, len(rows))
	for _, n := range rows {
		result = append(result, toNotificationResponse(n))
	}
	return result, total, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	count, err := s.notifications.CountUnread(ctx, userID)
	return count, storeErr(ctx, err, "count unread notifications")
}

// MarkRead is idempotent. A non-nil recipientID scopes the call to that user's
// notifications; anyone else's id reads as not found.
func (s *notificationService) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		return storeErr(ctx, err, "load notification")
	}
	if recipientID != uuid.Nil && n.RecipientID != recipientID {
		return fmt.Errorf("notification %s: %w", id, ErrNotFound)
	}

	now := s.now()
	changed, err := s.notifications.MarkRead(ctx, id, now)
	if err != nil {
		return storeErr(ctx, err, "mark notification read")
	}
	if changed {
		n.IsRead = true
		n.ReadAt = &now
		n.UpdatedAt = now
		s.events.Publish(realtime.NotificationEvent(realtime.OpUpdate, n))
	}
	return nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	now := s.now()
	var unread []model.Notification
	var count int64
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		unread, _, err = s.notifications.ListByRecipient(txCtx, userID, true, 1, 1000)
		if err != nil {
			return storeErr(txCtx, err, "list unread notifications")
		}
		count, err = s.notifications.MarkAllRead(txCtx, userID, now)
		return storeErr(txCtx, err, "mark all read")
	})
	if err != nil {
		return 0, err
	}

	events := make([]realtime.Event, 0, len(unread))
	for i := range unread {
		unread[i].IsRead = true
		unread[i].ReadAt = &now
		unread[i].UpdatedAt = now
		events = append(events, realtime.NotificationEvent(realtime.OpUpdate, &unread[i]))
	}
	s.events.Publish(events...)
	return count, nil
}

func humanType(t model.RequestType) string {
	if t == model.RequestTypeInventoryChange {
		return "inventory change"
	}
	return string(t)
}

func describeSize(req model.Request) string {
	if req.Type == model.RequestTypePurchase {
		return "amount " + req.Amount.StringFixed(2)
	}
	return fmt.Sprintf("quantity %d", req.Quantity)
}

func withComments(msg, comments string) string {
	if comments == "" {
		return msg
	}
	return msg + " Comments: " + comments
}
