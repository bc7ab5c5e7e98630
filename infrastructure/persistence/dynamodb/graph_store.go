// Package dynamodb persists graphs in a single DynamoDB table. Each
// graph lives in one item carrying the full JSON document plus listing
// metadata; a singleton pointer item names the active graph.
package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"codetrail/application/ports"
	"codetrail/domain/core/model"
	pkgerrors "codetrail/pkg/errors"
	"codetrail/pkg/observability"
	"codetrail/pkg/utils"
)

const (
	entityTypeGraph = "GRAPH"

	pointerPK = "CURRENT"
	pointerSK = "POINTER"
)

// graphItem is the DynamoDB item for one graph. The Document attribute
// holds the complete graph JSON so persistence stays lossless; the flat
// attributes exist for listing without decoding every document.
type graphItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	GraphID    string `dynamodbav:"GraphID"`
	Name       string `dynamodbav:"Name"`
	NodeCount  int    `dynamodbav:"NodeCount"`
	CreatedAt  string `dynamodbav:"CreatedAt"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
	Document   string `dynamodbav:"Document"`
}

type pointerItem struct {
	PK      string `dynamodbav:"PK"`
	SK      string `dynamodbav:"SK"`
	GraphID string `dynamodbav:"GraphID"`
}

// Store implements ports.GraphProvider on DynamoDB.
type Store struct {
	client    *dynamodb.Client
	tableName string
	metrics   *observability.Collector
	logger    *zap.Logger
}

// NewStore creates a DynamoDB-backed store against tableName.
func NewStore(client *dynamodb.Client, tableName string, metrics *observability.Collector, logger *zap.Logger) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		metrics:   metrics,
		logger:    logger,
	}
}

// storageError counts the failure before surfacing it as a typed error.
func (s *Store) storageError(message string, err error) error {
	s.metrics.StorageErrors.Inc()
	return pkgerrors.NewStorageError(message, err)
}

// GetCurrentGraph returns the graph the pointer item names, or nil when
// no pointer exists or it dangles.
func (s *Store) GetCurrentGraph(ctx context.Context) (*model.Graph, error) {
	id, err := s.readPointer(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, nil
	}

	graph, err := s.LoadGraph(ctx, id)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return graph, nil
}

// CreateGraph creates, persists and activates an empty graph.
func (s *Store) CreateGraph(ctx context.Context, name string) (*model.Graph, error) {
	graph := model.NewGraph(name)
	if err := s.SetCurrentGraph(ctx, graph); err != nil {
		return nil, err
	}
	s.logger.Info("Graph created",
		zap.String("graphID", graph.ID),
		zap.String("name", name),
	)
	return graph, nil
}

// SaveGraph writes the graph item.
func (s *Store) SaveGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}

	document, err := json.Marshal(graph)
	if err != nil {
		return pkgerrors.NewInternalError(fmt.Sprintf("failed to encode graph: %v", err))
	}

	item := graphItem{
		PK:         graphPK(graph.ID),
		SK:         "METADATA",
		EntityType: entityTypeGraph,
		GraphID:    graph.ID,
		Name:       graph.Name,
		NodeCount:  len(graph.Nodes),
		CreatedAt:  utils.FormatRFC3339(graph.CreatedAt),
		UpdatedAt:  utils.FormatRFC3339(graph.UpdatedAt),
		Document:   string(document),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal graph item: %v", err))
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return s.storageError("failed to save graph", err)
	}
	return nil
}

// SetCurrentGraph persists graph and points the pointer item at it.
func (s *Store) SetCurrentGraph(ctx context.Context, graph *model.Graph) error {
	if graph == nil {
		return pkgerrors.NewValidationError("graph cannot be nil")
	}
	if err := s.SaveGraph(ctx, graph); err != nil {
		return err
	}

	av, err := attributevalue.MarshalMap(pointerItem{
		PK:      pointerPK,
		SK:      pointerSK,
		GraphID: graph.ID,
	})
	if err != nil {
		return pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal pointer item: %v", err))
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return s.storageError("failed to set current graph", err)
	}
	return nil
}

// LoadGraph fetches a graph by id without activating it.
func (s *Store) LoadGraph(ctx context.Context, id string) (*model.Graph, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": graphPK(id),
		"SK": "METADATA",
	})
	if err != nil {
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal key: %v", err))
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return nil, s.storageError("failed to load graph", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("graph")
	}

	var item graphItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("graph item %s is not readable", id), err)
	}

	var graph model.Graph
	if err := json.Unmarshal([]byte(item.Document), &graph); err != nil {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("graph document %s is not readable", id), err)
	}
	if graph.Nodes == nil {
		graph.Nodes = make(map[string]*model.Node)
	}
	if graph.RootNodes == nil {
		graph.RootNodes = []string{}
	}
	if err := graph.Validate(); err != nil {
		return nil, pkgerrors.NewCorruptedError(
			fmt.Sprintf("graph document %s violates forest invariants", id), err)
	}
	return &graph, nil
}

// DeleteGraph removes a graph item, clearing the pointer when it named
// the deleted graph.
func (s *Store) DeleteGraph(ctx context.Context, id string) error {
	if _, err := s.LoadGraph(ctx, id); err != nil {
		return err
	}

	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": graphPK(id),
		"SK": "METADATA",
	})
	if err != nil {
		return pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal key: %v", err))
	}
	_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return s.storageError("failed to delete graph", err)
	}

	current, err := s.readPointer(ctx)
	if err != nil {
		return err
	}
	if current == id {
		pointerKey, err := attributevalue.MarshalMap(map[string]string{
			"PK": pointerPK,
			"SK": pointerSK,
		})
		if err != nil {
			return pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal pointer key: %v", err))
		}
		_, err = s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key:       pointerKey,
		})
		if err != nil {
			return s.storageError("failed to clear current graph pointer", err)
		}
	}

	s.logger.Info("Graph deleted", zap.String("graphID", id))
	return nil
}

// ListGraphs scans for graph items, reading only the listing attributes.
func (s *Store) ListGraphs(ctx context.Context) ([]ports.GraphSummary, error) {
	filter := expression.Name("EntityType").Equal(expression.Value(entityTypeGraph))
	projection := expression.NamesList(
		expression.Name("GraphID"),
		expression.Name("Name"),
		expression.Name("NodeCount"),
		expression.Name("CreatedAt"),
		expression.Name("UpdatedAt"),
	)
	expr, err := expression.NewBuilder().
		WithFilter(filter).
		WithProjection(projection).
		Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError(fmt.Sprintf("failed to build scan expression: %v", err))
	}

	currentID, err := s.readPointer(ctx)
	if err != nil {
		return nil, err
	}

	var summaries []ports.GraphSummary
	paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
		TableName:                 aws.String(s.tableName),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, s.storageError("failed to scan graphs", err)
		}
		for _, rawItem := range page.Items {
			var item graphItem
			if err := attributevalue.UnmarshalMap(rawItem, &item); err != nil {
				s.logger.Warn("Skipping unreadable graph item", zap.Error(err))
				continue
			}
			summaries = append(summaries, ports.GraphSummary{
				ID:        item.GraphID,
				Name:      item.Name,
				CreatedAt: utils.ParseRFC3339(item.CreatedAt),
				UpdatedAt: utils.ParseRFC3339(item.UpdatedAt),
				NodeCount: item.NodeCount,
				Current:   item.GraphID == currentID,
			})
		}
	}
	return summaries, nil
}

func (s *Store) readPointer(ctx context.Context) (string, error) {
	key, err := attributevalue.MarshalMap(map[string]string{
		"PK": pointerPK,
		"SK": pointerSK,
	})
	if err != nil {
		return "", pkgerrors.NewInternalError(fmt.Sprintf("failed to marshal pointer key: %v", err))
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key,
	})
	if err != nil {
		return "", s.storageError("failed to read current graph pointer", err)
	}
	if out.Item == nil {
		return "", nil
	}

	var pointer pointerItem
	if err := attributevalue.UnmarshalMap(out.Item, &pointer); err != nil {
		return "", pkgerrors.NewCorruptedError("current graph pointer is not readable", err)
	}
	return pointer.GraphID, nil
}

func graphPK(id string) string {
	return fmt.Sprintf("GRAPH#%s", id)
}
