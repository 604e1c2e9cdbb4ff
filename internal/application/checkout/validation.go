package checkout

import (
	"regexp"
	"strings"

	"github.com/mojig27/web-site-sub001/internal/domain/order"
)

var (
	postalCodePattern = regexp.MustCompile(`^\d{10}$`)
	mobilePattern     = regexp.MustCompile(`^09\d{9}$`)
)

// CartItem is a line of the shopper's cart. Prices are never taken from the
// client; they are looked up at checkout.
type CartItem struct {
	ProductID string
	Quantity  int
}

func validateCart(userID string, items []CartItem) error {
	if strings.TrimSpace(userID) == "" {
		return validation("user id is required")
	}
	if len(items) == 0 {
		return validation("cart is empty")
	}
	for i, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return validation("item %d: product id is required", i)
		}
		if it.Quantity <= 0 {
			return validation("item %d: quantity must be greater than zero", i)
		}
	}
	return nil
}

func validateAddress(a order.ShippingAddress) error {
	a = a.Normalized()
	switch {
	case a.Province == "":
		return validation("shipping address: province is required")
	case a.City == "":
		return validation("shipping address: city is required")
	case a.Address == "":
		return validation("shipping address: address is required")
	case !postalCodePattern.MatchString(a.PostalCode):
		return validation("shipping address: postal code must be 10 digits")
	case a.Receiver.Name == "":
		return validation("shipping address: receiver name is required")
	case !mobilePattern.MatchString(a.Receiver.Phone):
		return validation("shipping address: receiver phone must look like 09xxxxxxxxx")
	}
	return nil
}
