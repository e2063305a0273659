package main

import (
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/scriptgrade/scriptgrade/database"
	"github.com/scriptgrade/scriptgrade/model"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	store, err := database.StartGORM()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := store.Init(); err != nil {
		log.Fatalf("Failed to migrate tables: %v", err)
	}

	gormDB := store.GetDB().(*gorm.DB)

	separator := strings.Repeat("=", 60)
	fmt.Println(separator)
	fmt.Println("ScriptGrade - Database Seeding")
	fmt.Println(separator)

	if err := seedDemoExam(gormDB); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	fmt.Println("Seeding completed successfully.")
}

// seedDemoExam inserts a small UPSC-style demo exam, skipped if present
func seedDemoExam(db *gorm.DB) error {
	var count int64
	db.Model(&model.Exam{}).Where("title = ?", "Demo GS Paper I").Count(&count)
	if count > 0 {
		fmt.Println("Demo exam already present, skipping")
		return nil
	}

	exam := model.Exam{
		Title:       "Demo GS Paper I",
		ExamType:    "upsc",
		GradingMode: model.GradingModeBalanced,
		TotalMarks:  25,
		ModelAnswerText: "Q1: The Industrial Revolution transformed agrarian economies through " +
			"mechanization, urbanization, and new class structures.\n" +
			"Q2(a): Monsoon variability drives Indian agriculture cycles.\n" +
			"Q2(b): The Green Revolution raised yields through HYV seeds, irrigation, and fertilizer.",
		Questions: []model.Question{
			{
				Number:   1,
				Text:     "Discuss the social consequences of the Industrial Revolution.",
				MaxMarks: 10,
			},
			{
				Number:   2,
				Text:     "Answer both parts on Indian agriculture.",
				MaxMarks: 15,
				SubQuestions: []model.SubQuestion{
					{SubID: "a", Text: "Explain monsoon dependence of Indian agriculture.", MaxMarks: 7},
					{SubID: "b", Text: "Assess the legacy of the Green Revolution.", MaxMarks: 8},
				},
			},
		},
	}

	if err := db.Create(&exam).Error; err != nil {
		return err
	}

	fmt.Printf("Created demo exam %d with %d questions\n", exam.ID, len(exam.Questions))
	return nil
}
