package domain

var Tables = []interface{}{
	&Product{},
	&Enquiry{},
}
