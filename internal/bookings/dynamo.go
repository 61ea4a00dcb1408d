package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/avalon-labs/booking-ai-platform/pkg/logging"
)

const (
	customerIndex = "customerId-index"
	businessIndex = "businessId-index"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoRepository persists bookings to DynamoDB. A guard item per occupied
// slot, written with a conditional put, carries the conflict contract.
type DynamoRepository struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoRepository builds a store backed by the provided DynamoDB client.
func NewDynamoRepository(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoRepository {
	if client == nil {
		panic("bookings: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("bookings: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ Repository = (*DynamoRepository)(nil)

func slotGuardID(businessID, date, hhmm string) string {
	return fmt.Sprintf("slot#%s#%s#%s", businessID, date, hhmm)
}

// Save writes the booking item. Active bookings first claim their slot guard
// item; a failed condition means another booking holds the slot.
func (r *DynamoRepository) Save(ctx context.Context, booking *Booking) error {
	if booking == nil {
		return errors.New("bookings: booking cannot be nil")
	}

	date, hhmm := booking.SlotKey()

	// A reschedule moves the booking to a new guard item. Look up the prior
	// slot before anything is written so it can be released afterwards.
	var staleGuardID string
	if booking.ID != "" {
		prior, err := r.FindByID(ctx, booking.ID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return fmt.Errorf("bookings: load prior booking: %w", err)
		case prior.Active():
			priorDate, priorHHMM := prior.SlotKey()
			if priorDate != date || priorHHMM != hhmm {
				staleGuardID = slotGuardID(prior.BusinessID, priorDate, priorHHMM)
			}
		}
	}

	if booking.Active() {
		guard, err := attributevalue.MarshalMap(map[string]string{
			"id":        slotGuardID(booking.BusinessID, date, hhmm),
			"bookingId": booking.ID,
		})
		if err != nil {
			return fmt.Errorf("bookings: marshal slot guard: %w", err)
		}
		_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(r.tableName),
			Item:                guard,
			ConditionExpression: aws.String("attribute_not_exists(id) OR bookingId = :bid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":bid": &types.AttributeValueMemberS{Value: booking.ID},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				return ErrSlotConflict
			}
			return fmt.Errorf("bookings: claim slot: %w", err)
		}
	}

	item, err := attributevalue.MarshalMap(booking)
	if err != nil {
		return fmt.Errorf("bookings: marshal booking: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("bookings: save booking: %w", err)
	}

	if !booking.Active() {
		// Cancelled bookings release their slot for re-use.
		r.releaseSlotGuard(ctx, slotGuardID(booking.BusinessID, date, hhmm), booking.ID)
	}
	if staleGuardID != "" {
		r.releaseSlotGuard(ctx, staleGuardID, booking.ID)
	}

	return nil
}

// releaseSlotGuard deletes a guard item if it still belongs to the booking.
// A failed condition means another booking reclaimed the slot; anything else
// is logged and left for the next write to reconcile.
func (r *DynamoRepository) releaseSlotGuard(ctx context.Context, guardID, bookingID string) {
	if _, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: guardID},
		},
		ConditionExpression: aws.String("bookingId = :bid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":bid": &types.AttributeValueMemberS{Value: bookingID},
		},
	}); err != nil {
		var condErr *types.ConditionalCheckFailedException
		if !errors.As(err, &condErr) {
			r.logger.Warn("failed to release slot guard", "booking_id", bookingID, "error", err)
		}
	}
}

// FindByID loads a single booking item.
func (r *DynamoRepository) FindByID(ctx context.Context, id string) (*Booking, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: get booking: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var booking Booking
	if err := attributevalue.UnmarshalMap(out.Item, &booking); err != nil {
		return nil, fmt.Errorf("bookings: unmarshal booking: %w", err)
	}
	return &booking, nil
}

// FindByCustomerID queries the customer GSI, oldest first.
func (r *DynamoRepository) FindByCustomerID(ctx context.Context, customerID string) ([]*Booking, error) {
	return r.queryIndex(ctx, customerIndex, "customerId", customerID)
}

// FindByBusinessID queries the business GSI, oldest first.
func (r *DynamoRepository) FindByBusinessID(ctx context.Context, businessID string) ([]*Booking, error) {
	return r.queryIndex(ctx, businessIndex, "businessId", businessID)
}

// FindByBusinessDate returns non-cancelled bookings on the given UTC day.
func (r *DynamoRepository) FindByBusinessDate(ctx context.Context, businessID, date string) ([]*Booking, error) {
	all, err := r.FindByBusinessID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	var out []*Booking
	for _, b := range all {
		if !b.Active() {
			continue
		}
		if d, _ := b.SlotKey(); d == date {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *DynamoRepository) queryIndex(ctx context.Context, index, attr, value string) ([]*Booking, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(index),
		KeyConditionExpression: aws.String(fmt.Sprintf("%s = :v", attr)),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: value},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("bookings: query %s: %w", index, err)
	}

	bookings := make([]*Booking, 0, len(out.Items))
	for _, item := range out.Items {
		var booking Booking
		if err := attributevalue.UnmarshalMap(item, &booking); err != nil {
			return nil, fmt.Errorf("bookings: unmarshal booking: %w", err)
		}
		bookings = append(bookings, &booking)
	}
	sortByScheduledTime(bookings)
	return bookings, nil
}
