package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/spf13/cobra"

	"github.com/imrishuroy/course-orderflow/internal/aws"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/orders"
)

// tableAdmin is the slice of the DynamoDB client create-tables needs.
type tableAdmin interface {
	CreateTable(ctx context.Context, params *dyn.CreateTableInput, optFns ...func(*dyn.Options)) (*dyn.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dyn.UpdateTimeToLiveInput, optFns ...func(*dyn.Options)) (*dyn.UpdateTimeToLiveOutput, error)
}

func (c *cli) createTablesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-tables",
		Short: "Create the orders, earnings and idempotency tables",
		Long: `Create the DynamoDB tables with on-demand billing. Tables that
already exist are left alone, so the command is safe to rerun.

Examples:
  AWS_ENDPOINT_URL=http://localhost:8000 ordersctl create-tables`,
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := aws.NewAWSClients(cmd.Context(), aws.Options{Region: c.cfg.AWS.Region, Endpoint: c.cfg.AWS.Endpoint})
			if err != nil {
				return fmt.Errorf("init aws clients: %w", err)
			}
			return createTables(cmd.Context(), clients.Dynamo, c.cfg.Tables, cmd.OutOrStdout())
		},
	}
}

func createTables(ctx context.Context, admin tableAdmin, tables config.TablesConfig, out io.Writer) error {
	for _, in := range tableDefinitions(tables) {
		_, err := admin.CreateTable(ctx, in)
		var inUse *types.ResourceInUseException
		switch {
		case errors.As(err, &inUse):
			fmt.Fprintf(out, "%s: exists, skipping\n", *in.TableName)
			continue
		case err != nil:
			return fmt.Errorf("create table %s: %w", *in.TableName, err)
		}
		fmt.Fprintf(out, "%s: created\n", *in.TableName)
	}

	// idempotency records expire through TTL
	_, err := admin.UpdateTimeToLive(ctx, &dyn.UpdateTimeToLiveInput{
		TableName: &tables.Idempotency,
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: ptr("expires_at"),
			Enabled:       ptr(true),
		},
	})
	if err != nil {
		// already enabled is reported as a validation error
		fmt.Fprintf(out, "%s: ttl not updated: %v\n", tables.Idempotency, err)
	}
	return nil
}

func tableDefinitions(t config.TablesConfig) []*dyn.CreateTableInput {
	allAttrs := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	return []*dyn.CreateTableInput{
		{
			TableName:   ptr(t.Orders),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: ptr("order_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: ptr("user_id"), AttributeType: types.ScalarAttributeTypeN},
				{AttributeName: ptr("kind"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: ptr("created_ms"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: ptr("order_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: ptr(orders.UserIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: ptr("user_id"), KeyType: types.KeyTypeHash},
						{AttributeName: ptr("created_ms"), KeyType: types.KeyTypeRange},
					},
					Projection: allAttrs,
				},
				{
					IndexName: ptr(orders.KindIndex),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: ptr("kind"), KeyType: types.KeyTypeHash},
						{AttributeName: ptr("created_ms"), KeyType: types.KeyTypeRange},
					},
					Projection: allAttrs,
				},
			},
		},
		hashKeyTable(t.Earnings, "order_id"),
		hashKeyTable(t.Idempotency, "idempotency_key"),
	}
}

func hashKeyTable(name, key string) *dyn.CreateTableInput {
	return &dyn.CreateTableInput{
		TableName:   ptr(name),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: ptr(key), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: ptr(key), KeyType: types.KeyTypeHash},
		},
	}
}

func ptr[T any](v T) *T { return &v }
