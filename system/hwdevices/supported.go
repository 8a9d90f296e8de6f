package hwdevices

// Model describes one supported hardware model: how to recognize it on
// the bus and how large its LED zone is. The per-model byte protocol
// lives in the driver; this table only classifies.
type Model struct {
	VendorID  uint16
	ProductID uint16
	Make      string
	Name      string
	Class     DeviceClass
	LEDCount  int

	// LEDInterface selects the HID interface carrying the LED
	// channel on multi-interface devices.
	LEDInterface int
}

// supportedModels is the classification table consulted by probe. The
// generic driver handles every entry; model-specific init chunks are
// keyed off the table entry.
var supportedModels = []Model{
	{VendorID: 0x1e7d, ProductID: 0x3098, Make: "ROCCAT", Name: "Vulcan 100/12x", Class: ClassKeyboard, LEDCount: 144, LEDInterface: 3},
	{VendorID: 0x1e7d, ProductID: 0x307a, Make: "ROCCAT", Name: "Vulcan 100/12x", Class: ClassKeyboard, LEDCount: 144, LEDInterface: 3},
	{VendorID: 0x1e7d, ProductID: 0x311a, Make: "ROCCAT", Name: "Vulcan Pro TKL", Class: ClassKeyboard, LEDCount: 96, LEDInterface: 3},
	{VendorID: 0x1e7d, ProductID: 0x2c24, Make: "ROCCAT", Name: "Kone Pure Ultra", Class: ClassMouse, LEDCount: 1, LEDInterface: 1},
	{VendorID: 0x1e7d, ProductID: 0x2dd2, Make: "ROCCAT", Name: "Kova AIMO", Class: ClassMouse, LEDCount: 4, LEDInterface: 1},
	{VendorID: 0x1e7d, ProductID: 0x343b, Make: "ROCCAT", Name: "Sense AIMO XXL", Class: ClassMisc, LEDCount: 2, LEDInterface: 0},
}

// LookupModel finds the table entry for a vendor/product pair.
func LookupModel(vendorID, productID uint16) (Model, bool) {
	for _, m := range supportedModels {
		if m.VendorID == vendorID && m.ProductID == productID {
			return m, true
		}
	}
	return Model{}, false
}
