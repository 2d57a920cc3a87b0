package gateway

import (
	"context"
	"net/http"
	"path"
	"strconv"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/model"
)

const (
	categoriesPath     = "cmsapi/categories"
	categoryTogglePath = "cmsapi/categories/toggle"
	subcategoriesPath  = "cmsapi/subcategories"
	activeTogglePath   = "cmsapi/activetoggle"
	productsPath       = "cmsapi/products"

	operationCategories        = "list_categories"
	operationSaveCategory      = "save_category"
	operationDeleteCategory    = "delete_category"
	operationToggleCategory    = "toggle_category"
	operationSaveSubcategory   = "save_subcategory"
	operationDeleteSubcategory = "delete_subcategory"
	operationToggleActive      = "toggle_subcategory_active"
	operationProducts          = "list_products"
	operationSaveProduct       = "save_product"
	operationDeleteProduct     = "delete_product"
)

// CategoryToggleRequest flips is_popular or show_hide on a category.
type CategoryToggleRequest struct {
	Field string `json:"field"`
	Value int    `json:"value"`
}

// ActiveToggleRequest flips is_active on a subcategory.
type ActiveToggleRequest struct {
	SubcategoryID int64  `json:"subcategory_id"`
	Table         string `json:"table"`
	Field         string `json:"field"`
	Value         int    `json:"value"`
}

func identifierPath(prefix string, identifier int64) string {
	return path.Join(prefix, strconv.FormatInt(identifier, 10))
}

func flagValue(enabled bool) int {
	if enabled {
		return 1
	}
	return 0
}

// Categories returns every category with its nested subcategories.
func (client *Client) Categories(ctx context.Context) ([]model.Category, error) {
	var categories []model.Category
	if listErr := client.executeJSON(ctx, requestSpec{
		operation: operationCategories,
		method:    http.MethodGet,
		path:      categoriesPath,
	}, nil, &categories); listErr != nil {
		return nil, listErr
	}
	if categories == nil {
		categories = []model.Category{}
	}
	return categories, nil
}

// SaveCategory creates a category when identifier is zero and updates it otherwise.
func (client *Client) SaveCategory(ctx context.Context, identifier int64, payload *Payload) (MessageResponse, error) {
	return client.save(ctx, operationSaveCategory, categoriesPath, identifier, payload)
}

// DeleteCategory removes a category.
func (client *Client) DeleteCategory(ctx context.Context, identifier int64) error {
	return client.remove(ctx, operationDeleteCategory, categoriesPath, identifier)
}

// ToggleCategory sets is_popular or show_hide on a category.
func (client *Client) ToggleCategory(ctx context.Context, identifier int64, field string, enabled bool) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operationToggleCategory,
		method:    http.MethodPut,
		path:      identifierPath(categoryTogglePath, identifier),
	}, CategoryToggleRequest{Field: field, Value: flagValue(enabled)}, nil)
}

// SaveSubcategory creates a subcategory when identifier is zero and updates it otherwise.
func (client *Client) SaveSubcategory(ctx context.Context, identifier int64, payload *Payload) (MessageResponse, error) {
	return client.save(ctx, operationSaveSubcategory, subcategoriesPath, identifier, payload)
}

// DeleteSubcategory removes a subcategory.
func (client *Client) DeleteSubcategory(ctx context.Context, identifier int64) error {
	return client.remove(ctx, operationDeleteSubcategory, subcategoriesPath, identifier)
}

// ToggleSubcategoryActive sets is_active on a subcategory through the dedicated endpoint.
func (client *Client) ToggleSubcategoryActive(ctx context.Context, identifier int64, enabled bool) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operationToggleActive,
		method:    http.MethodPut,
		path:      identifierPath(activeTogglePath, identifier),
	}, ActiveToggleRequest{
		SubcategoryID: identifier,
		Table:         model.TableSubcategory,
		Field:         model.FieldIsActive,
		Value:         flagValue(enabled),
	}, nil)
}

// Subcategory looks up one subcategory through the generic table listing.
func (client *Client) Subcategory(ctx context.Context, identifier int64) (model.TableRecord, bool, error) {
	tablePage, listErr := client.ListTable(ctx, model.TableSubcategory, 1, "")
	if listErr != nil {
		return model.TableRecord{}, false, listErr
	}
	for _, row := range tablePage.Rows {
		rowIdentifier, idErr := row.ID()
		if idErr == nil && rowIdentifier == identifier {
			return row, true, nil
		}
	}
	return model.TableRecord{}, false, nil
}

// Products lists the products of one subcategory.
func (client *Client) Products(ctx context.Context, subcategoryID int64) ([]model.Product, error) {
	var products []model.Product
	if listErr := client.executeJSON(ctx, requestSpec{
		operation: operationProducts,
		method:    http.MethodGet,
		path:      identifierPath(productsPath, subcategoryID),
	}, nil, &products); listErr != nil {
		return nil, listErr
	}
	if products == nil {
		products = []model.Product{}
	}
	return products, nil
}

// SaveProduct creates a product when identifier is zero and updates it otherwise.
func (client *Client) SaveProduct(ctx context.Context, identifier int64, payload *Payload) (MessageResponse, error) {
	return client.save(ctx, operationSaveProduct, productsPath, identifier, payload)
}

// DeleteProduct removes a product.
func (client *Client) DeleteProduct(ctx context.Context, identifier int64) error {
	return client.remove(ctx, operationDeleteProduct, productsPath, identifier)
}

func (client *Client) save(ctx context.Context, operation string, collectionPath string, identifier int64, payload *Payload) (MessageResponse, error) {
	call := requestSpec{operation: operation, method: http.MethodPost, path: collectionPath}
	if identifier > 0 {
		call.method = http.MethodPut
		call.path = identifierPath(collectionPath, identifier)
	}
	var acknowledgement MessageResponse
	saveErr := client.executeMultipart(ctx, call, payload, &acknowledgement)
	return acknowledgement, saveErr
}

func (client *Client) remove(ctx context.Context, operation string, collectionPath string, identifier int64) error {
	return client.executeJSON(ctx, requestSpec{
		operation: operation,
		method:    http.MethodDelete,
		path:      identifierPath(collectionPath, identifier),
	}, nil, nil)
}
