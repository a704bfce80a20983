package ai

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockRenderer is a mock implementation of PageRenderer
type mockRenderer struct {
	image []byte
	err   error
}

func (m *mockRenderer) FirstPagePNG(pdf []byte) ([]byte, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.image, nil
}

const visionReply = `Amount: 1 500,00 ₽
Date: 12.03.2024
Bank: VTB
Operation: SBP transfer
Sender: Иван И.
Recipient: N/A
Reference: None
Legitimate: Yes
Confidence: 85
Warning: None`

var _ = Describe("ParseVision", func() {
	var (
		reply   string
		opinion *VisionOpinion
	)

	JustBeforeEach(func() {
		opinion = ParseVision(reply)
	})

	When("every label is present", func() {
		BeforeEach(func() {
			reply = visionReply
		})

		It("should extract the fields", func() {
			Expect(opinion.ExtractedData).To(Equal(VisionData{
				Amount:        "1500,00",
				Date:          "12.03.2024",
				BankName:      "VTB",
				OperationType: "SBP transfer",
				Sender:        "Иван И.",
			}))
		})

		It("should read the verdict", func() {
			Expect(opinion.Verified).To(BeTrue())
			Expect(opinion.Confidence).To(Equal(0.85))
		})

		It("should treat None as no warning", func() {
			Expect(opinion.Warning).To(BeEmpty())
		})

		It("should keep the raw reply", func() {
			Expect(opinion.RawAnalysis).To(Equal(visionReply))
		})
	})

	DescribeTable("confidence",
		func(line string, expected float64) {
			Expect(ParseVision(line).Confidence).To(Equal(expected))
		},
		Entry("full confidence", "Confidence: 100", 1.0),
		Entry("zero", "Confidence: 0", 0.0),
		Entry("with a percent sign", "Confidence: 70%", 0.7),
		Entry("above range is clamped", "Confidence: 250", 1.0),
		Entry("negative is clamped", "Confidence: -20", 0.0),
		Entry("overflowing digits are clamped", "Confidence: 99999999999999999999", 1.0),
		Entry("overflowing negative digits are clamped", "Confidence: -99999999999999999999", 0.0),
		Entry("not a number", "Confidence: high", 0.0),
	)

	DescribeTable("legitimate",
		func(line string, expected bool) {
			Expect(ParseVision(line).Verified).To(Equal(expected))
		},
		Entry("yes", "Legitimate: yes", true),
		Entry("upper case", "Legitimate: YES", true),
		Entry("no", "Legitimate: no", false),
		Entry("anything else", "Legitimate: probably", false),
	)

	When("the sender is N/A", func() {
		BeforeEach(func() {
			reply = "Sender: N/A"
		})

		It("should leave the sender absent", func() {
			Expect(opinion.ExtractedData.Sender).To(BeEmpty())
		})
	})

	When("a warning is given", func() {
		BeforeEach(func() {
			reply = "Warning: Fonts do not match"
		})

		It("should keep it", func() {
			Expect(opinion.Warning).To(Equal("Fonts do not match"))
		})
	})

	When("a label is not recognised", func() {
		BeforeEach(func() {
			reply = "Signature: present\nAmount: 100"
		})

		It("should be ignored", func() {
			Expect(opinion.ExtractedData).To(Equal(VisionData{Amount: "100"}))
		})
	})

	When("labels differ in case and decoration", func() {
		BeforeEach(func() {
			reply = "DATE: 01.01.2024\r\n**Bank**: Alfa"
		})

		It("should still match them", func() {
			Expect(opinion.ExtractedData.Date).To(Equal("01.01.2024"))
			Expect(opinion.ExtractedData.BankName).To(Equal("Alfa"))
		})
	})

	When("a value contains the separator", func() {
		BeforeEach(func() {
			reply = "Operation: Transfer: SBP"
		})

		It("should split on the first separator only", func() {
			Expect(opinion.ExtractedData.OperationType).To(Equal("Transfer: SBP"))
		})
	})

	When("lines carry no separator", func() {
		BeforeEach(func() {
			reply = "I could not read the image\nLegitimate:no"
		})

		It("should ignore them", func() {
			Expect(opinion.Verified).To(BeFalse())
			Expect(opinion.ExtractedData).To(Equal(VisionData{}))
		})
	})
})

var _ = Describe("VisionVerifier", func() {
	var (
		model    *mockModel
		renderer *mockRenderer
		opinion  *VisionOpinion
		err      error
	)

	BeforeEach(func() {
		model = &mockModel{reply: visionReply}
		renderer = &mockRenderer{image: []byte("png")}
	})

	JustBeforeEach(func() {
		opinion, err = NewVisionVerifier(model, renderer).Analyze(context.Background(), []byte("%PDF-1.7"))
	})

	When("rendering and the request succeed", func() {
		It("should return the parsed opinion", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(opinion.Verified).To(BeTrue())
		})

		It("should send the rendered image", func() {
			Expect(model.requests).To(HaveLen(1))
			Expect(model.requests[0].ImagePNG).To(Equal([]byte("png")))
			Expect(model.requests[0].Temperature).To(Equal(float32(0.3)))
		})
	})

	When("rendering fails", func() {
		BeforeEach(func() {
			renderer.err = errors.New("bad page")
		})

		It("should return ErrVisionFailed", func() {
			Expect(errors.Is(err, ErrVisionFailed)).To(BeTrue())
		})

		It("should not call the model", func() {
			Expect(model.requests).To(BeEmpty())
		})
	})

	When("the request fails", func() {
		BeforeEach(func() {
			model.err = ErrServiceUnavailable
		})

		It("should return ErrVisionFailed wrapping the cause", func() {
			Expect(errors.Is(err, ErrVisionFailed)).To(BeTrue())
			Expect(errors.Is(err, ErrServiceUnavailable)).To(BeTrue())
		})
	})
})
