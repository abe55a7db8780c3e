package common

import (
	"github.com/shopspring/decimal"
)

// Ingredient is one active ingredient of a medication with its strengths.
type Ingredient struct {
	ActiveIngredient         *ConceptReference `json:"activeIngredient" validate:"required"`
	PreciseIngredient        *ConceptReference `json:"preciseIngredient,omitempty"`
	BasisOfStrengthSubstance *ConceptReference `json:"basisOfStrengthSubstance,omitempty"`
	TotalQuantity            *Quantity         `json:"totalQuantity,omitempty"`
	ConcentrationStrength    *Quantity         `json:"concentrationStrength,omitempty"`
}

// StrengthSubstance returns the substance the strength is expressed against.
func (i Ingredient) StrengthSubstance() *ConceptReference {
	if i.BasisOfStrengthSubstance != nil {
		return i.BasisOfStrengthSubstance
	}
	if i.PreciseIngredient != nil {
		return i.PreciseIngredient
	}
	return i.ActiveIngredient
}

// MedicationProductDetails describes a medication unit of use.
type MedicationProductDetails struct {
	ProductName                 *ConceptReference `json:"productName,omitempty"`
	GenericForm                 *ConceptReference `json:"genericForm,omitempty"`
	SpecificForm                *ConceptReference `json:"specificForm,omitempty"`
	UnitOfPresentation          *ConceptReference `json:"unitOfPresentation,omitempty"`
	DeviceType                  *ConceptReference `json:"deviceType,omitempty"`
	ContainerType               *ConceptReference `json:"containerType,omitempty"`
	Quantity                    *Quantity         `json:"quantity,omitempty"`
	OtherIdentifyingInformation string            `json:"otherIdentifyingInformation,omitempty"`
	ActiveIngredients           []Ingredient      `json:"activeIngredients"`
}

// DeviceProductDetails describes a device unit of use.
//
// Either SpecificDeviceType names an existing concept or NewSpecificDeviceName
// asks for a new one to be created under DeviceType.
type DeviceProductDetails struct {
	ProductName                 *ConceptReference  `json:"productName,omitempty"`
	DeviceType                  *ConceptReference  `json:"deviceType,omitempty"`
	SpecificDeviceType          *ConceptReference  `json:"specificDeviceType,omitempty"`
	NewSpecificDeviceName       string             `json:"newSpecificDeviceName,omitempty"`
	OtherIdentifyingInformation string             `json:"otherIdentifyingInformation,omitempty"`
	OtherParentConcepts         []ConceptReference `json:"otherParentConcepts,omitempty"`
}

// ProductQuantity is a unit of use inside a package together with how many
// of it the package holds.
type ProductQuantity[T any] struct {
	Value          decimal.Decimal   `json:"value"`
	Unit           *ConceptReference `json:"unit" validate:"required"`
	ProductDetails T                 `json:"productDetails"`
}

// PackageQuantity is a package nested in another package.
type PackageQuantity[T any] struct {
	Value          decimal.Decimal   `json:"value"`
	Unit           *ConceptReference `json:"unit" validate:"required"`
	PackageDetails PackageDetails[T] `json:"packageDetails"`
}

// PackageDetails is the structured description of a package and everything
// it contains.
type PackageDetails[T any] struct {
	ProductName                *ConceptReference    `json:"productName,omitempty"`
	ContainerType              *ConceptReference    `json:"containerType,omitempty"`
	ContainedProducts          []ProductQuantity[T] `json:"containedProducts,omitempty"`
	ContainedPackages          []PackageQuantity[T] `json:"containedPackages,omitempty"`
	ExternalIdentifiers        []ExternalIdentifier `json:"externalIdentifiers,omitempty"`
	SelectedConceptIdentifiers []string             `json:"selectedConceptIdentifiers,omitempty"`
}

// BrandWithIdentifiers is one brand of a bulk brand/pack size operation. A
// brand without an id is created as a new product name.
type BrandWithIdentifiers struct {
	Brand               ConceptReference     `json:"brand"`
	ExternalIdentifiers []ExternalIdentifier `json:"externalIdentifiers,omitempty"`
}

// PackSizeWithIdentifiers is one pack size of a bulk brand/pack size operation.
type PackSizeWithIdentifiers struct {
	PackSize            decimal.Decimal      `json:"packSize"`
	ExternalIdentifiers []ExternalIdentifier `json:"externalIdentifiers,omitempty"`
}

// BrandPackSizeCreationDetails asks for every combination of the given
// brands and pack sizes of an existing single-product package.
type BrandPackSizeCreationDetails struct {
	ProductID      string                                   `json:"productId"`
	PackageDetails PackageDetails[MedicationProductDetails] `json:"packageDetails"`
	Brands         []BrandWithIdentifiers                   `json:"brands"`
	PackSizes      []PackSizeWithIdentifiers                `json:"packSizes"`
}
