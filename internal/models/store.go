package models

import "time"

// Store магазин пользователя. У каждого пользователя ровно один магазин,
// идентификатор магазина совпадает с идентификатором владельца.
type Store struct {
	OwnerUID    string `json:"owner_uid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Slug        string `json:"slug"`

	// Премиальные возможности, выключаются при истечении триала.
	WidgetEnabled  bool `json:"widget_enabled"`
	BannerEnabled  bool `json:"banner_enabled"`
	ShowCategories bool `json:"show_categories"`

	SubscriptionEnabled    bool `json:"subscription_enabled"`
	SlidesEnabled          bool `json:"slides_enabled"`
	DisplayPriceOnProducts bool `json:"display_price_on_products"`
	IsActive               bool `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StoreFeatures набор премиальных флагов магазина.
type StoreFeatures struct {
	WidgetEnabled  bool `json:"widget_enabled"`
	BannerEnabled  bool `json:"banner_enabled"`
	ShowCategories bool `json:"show_categories"`
}

// DisabledStoreFeatures возвращает набор флагов с выключенными премиальными возможностями.
func DisabledStoreFeatures() StoreFeatures {
	return StoreFeatures{}
}

// DefaultStore возвращает магазин, который создаётся при регистрации.
// Премиальные возможности у нового магазина выключены.
func DefaultStore(ownerUID, displayName, slug string, now time.Time) Store {
	name := displayName
	if name == "" {
		name = "My"
	}
	return Store{
		OwnerUID:               ownerUID,
		Name:                   name + " Store",
		Description:            "Welcome to my awesome store! Discover unique products curated just for you.",
		Slug:                   slug,
		SubscriptionEnabled:    true,
		SlidesEnabled:          true,
		DisplayPriceOnProducts: true,
		IsActive:               true,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}
