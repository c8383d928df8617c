package cache

import "fmt"

const CategoriesKey = "categories"

func SubCategoriesKey(categoryID string) string {
	return fmt.Sprintf("subcategories_%s", categoryID)
}

func ItemsKey(categoryID, subCategory string) string {
	return fmt.Sprintf("items_%s_%s", categoryID, subCategory)
}

func OrdersKey(userID string) string {
	return fmt.Sprintf("orders_%s", userID)
}

func OrderKey(orderID string) string {
	return fmt.Sprintf("order_%s", orderID)
}
