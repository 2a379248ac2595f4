package receipt

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parse", func() {
	var (
		responseText string
		items        []RawItem
		err          error
	)

	JustBeforeEach(func() {
		items, err = Parse(responseText)
	})

	When("the reply is a valid array", func() {
		BeforeEach(func() {
			responseText = `[
				{"name": "Organic Milk 1L", "price": 12.5, "quantity": 2, "needsVerification": false, "hasTax": true, "taxAmount": 0.35},
				{"name": "ORG BRD", "price": 8, "needsVerification": true}
			]`
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should keep every element in order", func() {
			Expect(items).To(HaveLen(2))
			Expect(items[0].Name).To(Equal("Organic Milk 1L"))
			Expect(items[1].Name).To(Equal("ORG BRD"))
		})

		It("should parse numeric fields", func() {
			Expect(items[0].Price).To(Equal(12.5))
			Expect(items[0].Quantity).To(Equal(2.0))
			Expect(items[0].TaxAmount).To(Equal(ptr(0.35)))
		})

		It("should default quantity and optional fields", func() {
			Expect(items[1].Quantity).To(Equal(1.0))
			Expect(items[1].HasTax).To(BeFalse())
			Expect(items[1].TaxAmount).To(BeNil())
			Expect(items[1].NeedsVerification).To(BeTrue())
		})

		It("should never populate deposit or discount", func() {
			Expect(items[0].Deposit).To(BeNil())
			Expect(items[0].Discount).To(BeNil())
		})
	})

	When("the reply is fenced", func() {
		BeforeEach(func() {
			responseText = "```json\n[{\"name\":\"X\",\"price\":1}]\n```"
		})

		It("parses identically to the bare array", func() {
			Expect(err).NotTo(HaveOccurred())
			bare, bareErr := Parse(`[{"name":"X","price":1}]`)
			Expect(bareErr).NotTo(HaveOccurred())
			Expect(items).To(Equal(bare))
		})
	})

	When("optional values have unexpected types", func() {
		BeforeEach(func() {
			responseText = `[{"name": "X", "price": 1, "quantity": "3", "needsVerification": "yes", "hasTax": 0, "taxAmount": "0.1"}]`
		})

		It("coerces booleans by truthiness", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(items[0].NeedsVerification).To(BeTrue())
			Expect(items[0].HasTax).To(BeFalse())
		})

		It("drops non-numeric quantity and tax", func() {
			Expect(items[0].Quantity).To(Equal(1.0))
			Expect(items[0].TaxAmount).To(BeNil())
		})
	})

	When("quantity is not positive", func() {
		BeforeEach(func() {
			responseText = `[{"name": "X", "price": 1, "quantity": 0}]`
		})

		It("defaults to 1", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(items[0].Quantity).To(Equal(1.0))
		})
	})

	When("an element is an attachment", func() {
		BeforeEach(func() {
			responseText = `[
				{"name": "Coca-Cola", "price": 3.5},
				{"name": "TPD", "price": -0.5, "isAttachment": true, "attachmentType": " Discount "}
			]`
		})

		It("accepts a negative price", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(items[1].Price).To(Equal(-0.5))
		})

		It("keeps the attachment fields", func() {
			Expect(items[1].IsAttachment).To(BeTrue())
			Expect(items[1].AttachmentType).To(Equal(AttachmentDiscount))
			Expect(items[0].IsAttachment).To(BeFalse())
		})
	})

	When("the reply is not JSON", func() {
		BeforeEach(func() {
			responseText = "not json"
		})

		It("returns a parse error for the whole payload", func() {
			Expect(err).To(MatchError(ErrParse))
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Index).To(Equal(-1))
		})

		It("embeds the raw response", func() {
			Expect(err.Error()).To(ContainSubstring("Response:\nnot json"))
		})
	})

	When("the reply is not an array", func() {
		BeforeEach(func() {
			responseText = `{"name": "X", "price": 1}`
		})

		It("returns a parse error", func() {
			Expect(err).To(MatchError(ErrParse))
			Expect(err.Error()).To(ContainSubstring("response is not an array"))
		})
	})

	When("an element is missing its name", func() {
		BeforeEach(func() {
			responseText = `[{"price": 1}]`
		})

		It("returns a parse error referencing index 0", func() {
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Index).To(Equal(0))
			Expect(err.Error()).To(ContainSubstring("invalid item at index 0: missing or invalid name field"))
		})

		It("returns no items", func() {
			Expect(items).To(BeNil())
		})
	})

	DescribeTable("rejecting malformed elements",
		func(response string, index int, reason string) {
			_, err := Parse(response)
			var parseErr *ParseError
			Expect(errors.As(err, &parseErr)).To(BeTrue())
			Expect(parseErr.Index).To(Equal(index))
			Expect(parseErr.Reason).To(Equal(reason))
			Expect(parseErr.Response).To(Equal(response))
		},
		Entry("blank name", `[{"name": "A", "price": 1}, {"name": "  ", "price": 1}]`, 1, "missing or invalid name field"),
		Entry("numeric name", `[{"name": 42, "price": 1}]`, 0, "missing or invalid name field"),
		Entry("missing price", `[{"name": "A"}]`, 0, "missing or invalid price field"),
		Entry("string price", `[{"name": "A", "price": "1.00"}]`, 0, "missing or invalid price field"),
		Entry("negative price", `[{"name": "A", "price": 1}, {"name": "B", "price": 2}, {"name": "C", "price": -1}]`, 2, "missing or invalid price field"),
		Entry("non-object element", `[{"name": "A", "price": 1}, "B"]`, 1, "not an object"),
	)
})
