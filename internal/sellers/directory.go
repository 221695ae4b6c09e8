// Package sellers resolves store ids to the seller details the order core
// needs: display name, owner email for authorisation and location for
// delivery pricing.
package sellers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-marketplace-orders/internal/aws"
)

// Seller is a store on the marketplace.
type Seller struct {
	SellerID     string `dynamodbav:"seller_id" json:"storeId"`
	Name         string `dynamodbav:"name" json:"name"`
	Email        string `dynamodbav:"email" json:"email"`
	StoreName    string `dynamodbav:"store_name" json:"storeName"`
	StoreAddress string `dynamodbav:"store_address" json:"address"`
	District     string `dynamodbav:"district" json:"district"`
	Region       string `dynamodbav:"region" json:"region"`
	Thana        string `dynamodbav:"thana,omitempty" json:"thana,omitempty"`
	Status       string `dynamodbav:"status" json:"status"`
}

// Directory looks sellers up by store id. FindByID returns (nil, nil) when
// the store does not exist.
type Directory interface {
	FindByID(ctx context.Context, storeID string) (*Seller, error)
}

// Store reads sellers from DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore returns a Store over the sellers table.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// FindByID fetches a seller by store id. Returns (nil, nil) if not found.
func (s *Store) FindByID(ctx context.Context, storeID string) (*Seller, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"seller_id": &types.AttributeValueMemberS{Value: storeID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get seller: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var seller Seller
	if err := attributevalue.UnmarshalMap(out.Item, &seller); err != nil {
		return nil, fmt.Errorf("unmarshal seller: %w", err)
	}
	return &seller, nil
}
