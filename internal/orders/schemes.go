package orders

import (
	"github.com/angelmondragon/mpsync/pkg/db/models"
	"github.com/angelmondragon/mpsync/pkg/enums"
)

func fboScheme(src Source) scheme[models.FBOOrder, models.FBOOrderItem] {
	return scheme[models.FBOOrder, models.FBOOrderItem]{
		name:      enums.SchemeFBO,
		fetch:     src.FBOPostings,
		orders:    fboOrders,
		items:     fboItems,
		setParent: func(i *models.FBOOrderItem, id int64) { i.PostingID = id },
	}
}

func fbsScheme(src Source) scheme[models.FBSOrder, models.FBSOrderItem] {
	return scheme[models.FBSOrder, models.FBSOrderItem]{
		name:      enums.SchemeFBS,
		fetch:     src.FBSPostings,
		orders:    fbsOrders,
		items:     fbsItems,
		setParent: func(i *models.FBSOrderItem, id int64) { i.PostingID = id },
	}
}
