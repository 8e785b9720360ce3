package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/database"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/repository"
)

func main() {
	force := flag.Bool("force", false, "Seed even when published content already exists")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)

	questions, tasks, err := questionRepo.CountPublished(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to count published content")
	}
	if questions+tasks > 0 && !*force {
		fmt.Printf("Found %d published questions and %d tasks; nothing to do (use -force to add more).\n", questions, tasks)
		return
	}

	fmt.Println("=== Seeding exam content ===")

	created := 0
	for i := range seedQuestions {
		q := &seedQuestions[i]
		q.Published = true
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Fatal().Err(err).Str("question", q.Text).Msg("Failed to create question")
		}
		created++
	}
	fmt.Printf("Created %d questions\n", created)

	created = 0
	for i := range seedTasks {
		t := &seedTasks[i]
		t.Published = true
		if err := questionRepo.CreateTask(ctx, t); err != nil {
			log.Fatal().Err(err).Str("task", t.Title).Msg("Failed to create task")
		}
		created++
	}
	fmt.Printf("Created %d programming tasks\n", created)

	fmt.Println("\nSeed completed!")
}

var seedQuestions = []model.Question{
	{Subject: model.BlockMath, Text: "Найдите значение выражения: 2x + 5 при x = 3", Options: []string{"8", "9", "10", "11"}, CorrectIndex: 3, Points: 1},
	{Subject: model.BlockMath, Text: "Чему равен корень уравнения x^2 = 49, если x > 0?", Options: []string{"-7", "7", "0", "14"}, CorrectIndex: 1, Points: 1},
	{Subject: model.BlockMath, Text: "Сколько процентов составляет 15 из 60?", Options: []string{"20%", "25%", "30%", "35%"}, CorrectIndex: 1, Points: 1},
	{Subject: model.BlockMath, Text: "Сумма углов треугольника равна", Options: []string{"90°", "120°", "180°", "360°"}, CorrectIndex: 2, Points: 1},
	{Subject: model.BlockMath, Text: "Чему равна площадь квадрата со стороной 4?", Options: []string{"8", "12", "16", "20"}, CorrectIndex: 2, Points: 1},

	{Subject: model.BlockRu, Text: "Укажите слово с безударной гласной, проверяемой ударением", Options: []string{"з..рница", "г..лос", "т..ржество", "пр..творить"}, CorrectIndex: 1, Points: 1},
	{Subject: model.BlockRu, Text: "В каком слове пишется Ь?", Options: []string{"камыш..", "рож..", "дочь", "плащ.."}, CorrectIndex: 2, Points: 1},
	{Subject: model.BlockRu, Text: "Укажите вариант с правильным ударением", Options: []string{"тортЫ", "красИвее", "свЁкла", "дОговор"}, CorrectIndex: 2, Points: 1},
	{Subject: model.BlockRu, Text: "Какое слово является существительным?", Options: []string{"быстрый", "бег", "читать", "смело"}, CorrectIndex: 1, Points: 1},
	{Subject: model.BlockRu, Text: "В каком слове есть приставка?", Options: []string{"море", "лесной", "подъезд", "друг"}, CorrectIndex: 2, Points: 1},
}

var seedTasks = []model.ProgTask{
	{Title: "Сумма двух чисел", Statement: "Даны два целых числа. Выведите их сумму.", Points: 1},
	{Title: "Максимум из трех", Statement: "Даны три целых числа. Выведите наибольшее.", Points: 1},
	{Title: "Количество четных", Statement: "Дано N и затем N чисел. Выведите количество четных.", Points: 1},
	{Title: "Палиндром", Statement: "Дана строка. Выведите YES если это палиндром, иначе NO.", Points: 1},
	{Title: "Факториал", Statement: "Дано число N (0<=N<=12). Выведите N!.", Points: 1},
}
