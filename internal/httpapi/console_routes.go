package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/MarkoPoloResearchLab/cmsconsole/internal/catalog"
)

// RegisterConsoleRoutes mounts the signed-in pages and their live actions on group.
// group must already require an authenticated session.
func RegisterConsoleRoutes(group gin.IRoutes, handlers *ConsoleHandlers) {
	group.GET(RouteDashboard, handlers.RenderDashboard)
	group.GET(RouteCatalog, handlers.RenderCatalog)
	group.GET(RouteProductsPrefix+":"+paramSubcategoryID, handlers.RenderProducts)
	group.GET(RouteTablesPrefix+":"+paramTable, handlers.RenderEditableTable)
	group.GET(RouteTablesPrefix+":"+paramTable+"/export", handlers.ExportTable)
	group.GET(RouteTablesPrefix+":"+paramTable+"/layout/:"+paramLayout, handlers.RenderEditableTable)
	group.GET(RouteViewsPrefix+":"+paramTable, handlers.RenderReadOnlyTable)
	group.GET(RouteViewsPrefix+":"+paramTable+"/export", handlers.ExportTable)
	group.GET(RouteViewsPrefix+":"+paramTable+"/layout/:"+paramLayout, handlers.RenderReadOnlyTable)
	group.POST(RouteUnreadPrefix+":"+paramUnreadKind+"/mark-read", handlers.MarkRead)

	live := RouteLivePrefix + ":" + paramViewID
	group.GET(live+"/stream", handlers.Stream)

	table := live + "/" + string(ViewKindTable)
	group.POST(table+"/search", handlers.TableSearch)
	group.POST(table+"/page/:"+paramPageNumber, handlers.TablePage)
	group.POST(table+"/add", handlers.TableAdd)
	group.POST(table+"/edit/:"+paramRecordID, handlers.TableEdit)
	group.POST(table+"/close", handlers.TableClose)
	group.POST(table+"/submit", handlers.TableSubmit)
	group.POST(table+"/delete/cancel", handlers.TableCancelDelete)
	group.POST(table+"/delete/:"+paramRecordID, handlers.TableDelete)
	group.POST(table+"/delete/:"+paramRecordID+"/confirm", handlers.TableConfirmDelete)
	group.POST(table+"/toggle/:"+paramRecordID+"/:"+paramField+"/:"+paramValue, handlers.TableToggle)

	board := live + "/" + string(ViewKindCatalog)
	group.POST(board+"/expand/:"+paramRecordID, handlers.CatalogExpand)
	group.POST(board+"/category/add", handlers.CatalogCategoryAdd)
	group.POST(board+"/category/:"+paramRecordID+"/edit", handlers.CatalogCategoryEdit)
	group.POST(board+"/category/:"+paramRecordID+"/delete", handlers.CatalogDelete(catalog.DeleteKindCategory))
	group.POST(board+"/category/:"+paramRecordID+"/toggle/:"+paramField+"/:"+paramValue, handlers.CatalogCategoryToggle)
	group.POST(board+"/category/:"+paramRecordID+"/subcategory/add", handlers.CatalogSubcategoryAdd)
	group.POST(board+"/subcategory/:"+paramRecordID+"/edit", handlers.CatalogSubcategoryEdit)
	group.POST(board+"/subcategory/:"+paramRecordID+"/delete", handlers.CatalogDelete(catalog.DeleteKindSubcategory))
	group.POST(board+"/subcategory/:"+paramRecordID+"/toggle/:"+paramField+"/:"+paramValue, handlers.CatalogSubcategoryToggle)
	group.POST(board+"/form/submit", handlers.CatalogFormSubmit)
	group.POST(board+"/form/close", handlers.CatalogFormClose)
	group.POST(board+"/delete/cancel", handlers.CatalogCancelDelete)
	group.POST(board+"/delete/:"+paramKind+"/:"+paramRecordID+"/confirm", handlers.CatalogConfirmDelete)

	products := live + "/" + string(ViewKindProducts)
	group.POST(products+"/add", handlers.ProductAdd)
	group.POST(products+"/form/submit", handlers.ProductFormSubmit)
	group.POST(products+"/form/close", handlers.ProductFormClose)
	group.POST(products+"/form/new-image/:"+paramIndex+"/remove", handlers.ProductRemoveNewImage)
	group.POST(products+"/delete/cancel", handlers.ProductCancelDelete)
	group.POST(products+"/:"+paramRecordID+"/edit", handlers.ProductEdit)
	group.POST(products+"/:"+paramRecordID+"/toggle/:"+paramField+"/:"+paramValue, handlers.ProductToggle)
	group.POST(products+"/:"+paramRecordID+"/delete", handlers.ProductDelete)
	group.POST(products+"/:"+paramRecordID+"/delete/confirm", handlers.ProductConfirmDelete)

	dashboard := live + "/" + string(ViewKindDashboard)
	group.POST(dashboard+"/refresh", handlers.DashboardRefresh)
	group.POST(dashboard+"/page/:"+paramPageNumber, handlers.DashboardPage)
	group.POST(dashboard+"/filters", handlers.DashboardFilters)
	group.POST(dashboard+"/table/toggle", handlers.DashboardToggleTable)
}
